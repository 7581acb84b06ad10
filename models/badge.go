package models

// Badge: static catalog entry. The rule table below is the single source of
// truth for unlock conditions; awarded instances live on UserRewardState.
type Badge struct {
	Code        string           `json:"code"` // e.g., "STREAK_7", "FIRST_GOAL"
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Icon        string           `json:"icon"` // emoji rendered by the client
	Rarity      string           `json:"rarity"` // common, rare, epic, legendary
	Threshold   map[string]int64 `json:"threshold"` // e.g., {"current_streak": 7}
}

// BadgeByCode looks a catalog entry up by its code
func BadgeByCode(code string) (Badge, bool) {
	for _, b := range BadgeRules {
		if b.Code == code {
			return b, true
		}
	}
	return Badge{}, false
}

// Predefined badge rules
var BadgeRules = []Badge{
	{
		Code:        "FIRST_SESSION",
		Name:        "First Steps",
		Description: "Finished your first study session",
		Icon:        "🌱",
		Rarity:      "common",
		Threshold:   map[string]int64{"total_sessions": 1},
	},
	{
		Code:        "FIRST_GOAL",
		Name:        "Finisher",
		Description: "Completed your first goal",
		Icon:        "🏁",
		Rarity:      "common",
		Threshold:   map[string]int64{"goals_completed": 1},
	},
	{
		Code:        "STREAK_7",
		Name:        "Week Warrior",
		Description: "Studied 7 days in a row",
		Icon:        "🔥",
		Rarity:      "rare",
		Threshold:   map[string]int64{"current_streak": 7},
	},
	{
		Code:        "STREAK_30",
		Name:        "Monthly Devotee",
		Description: "Studied 30 days in a row",
		Icon:        "🌋",
		Rarity:      "epic",
		Threshold:   map[string]int64{"current_streak": 30},
	},
	{
		Code:        "HOURS_10",
		Name:        "Deep Diver",
		Description: "Logged 10 hours of focused study",
		Icon:        "⏳",
		Rarity:      "common",
		Threshold:   map[string]int64{"total_minutes": 600},
	},
	{
		Code:        "HOURS_100",
		Name:        "Century Scholar",
		Description: "Logged 100 hours of focused study",
		Icon:        "🎓",
		Rarity:      "epic",
		Threshold:   map[string]int64{"total_minutes": 6000},
	},
	{
		Code:        "MILESTONES_25",
		Name:        "Checkpoint Hunter",
		Description: "Hit 25 goal milestones",
		Icon:        "🚩",
		Rarity:      "rare",
		Threshold:   map[string]int64{"milestones_hit": 25},
	},
	{
		Code:        "GOALS_10",
		Name:        "Serial Achiever",
		Description: "Completed 10 goals",
		Icon:        "🏆",
		Rarity:      "epic",
		Threshold:   map[string]int64{"goals_completed": 10},
	},
	{
		Code:        "POINTS_1000",
		Name:        "Point Collector",
		Description: "Earned 1000 reward points",
		Icon:        "💎",
		Rarity:      "rare",
		Threshold:   map[string]int64{"total_points": 1000},
	},
	{
		Code:        "LEVEL_10",
		Name:        "Rising Star",
		Description: "Reached level 10",
		Icon:        "⭐",
		Rarity:      "legendary",
		Threshold:   map[string]int64{"level": 10},
	},
}
