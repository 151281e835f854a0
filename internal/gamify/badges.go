package gamify

// Badge is a one-time achievement. Unlocked evaluates the badge's threshold
// against the reader's post-transition totals; once a badge id is in a
// reader's set it is never re-evaluated or revoked.
type Badge struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Unlocked    func(totalCompletions, currentStreak int) bool
}

// BadgeCatalog is the static set of badges. Evaluated independently, so any
// subset may unlock on a single completion.
var BadgeCatalog = []Badge{
	{
		ID:          "first_book",
		Name:        "First Steps",
		Description: "Read your first book!",
		Icon:        "📖",
		Unlocked: func(total, streak int) bool {
			return total >= 1
		},
	},
	{
		ID:          "week_streak",
		Name:        "Week Warrior",
		Description: "7-day reading streak",
		Icon:        "🔥",
		Unlocked: func(total, streak int) bool {
			return streak >= 7
		},
	},
	{
		ID:          "month_streak",
		Name:        "Monthly Master",
		Description: "30-day reading streak",
		Icon:        "⭐",
		Unlocked: func(total, streak int) bool {
			return streak >= 30
		},
	},
	{
		ID:          "bookworm",
		Name:        "Bookworm",
		Description: "Read 10 books",
		Icon:        "🐛",
		Unlocked: func(total, streak int) bool {
			return total >= 10
		},
	},
	{
		ID:          "scholar",
		Name:        "Scholar",
		Description: "Read 25 books",
		Icon:        "🎓",
		Unlocked: func(total, streak int) bool {
			return total >= 25
		},
	},
	{
		ID:          "genius",
		Name:        "Reading Genius",
		Description: "Read 50 books",
		Icon:        "🧠",
		Unlocked: func(total, streak int) bool {
			return total >= 50
		},
	},
}

// BadgeByID looks up a badge definition in the catalog.
func BadgeByID(id string) (Badge, bool) {
	for _, b := range BadgeCatalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}
