package services

import (
	"math"
)

// RewardPolicy defines point awards per completion event (tunable)
type RewardPolicy struct {
	MilestonePoints      int64   // fixed award per milestone
	GoalCompletionPoints int64   // fixed award for finishing a goal
	GoalBonusRate        float64 // extra points per unit of target value
}

var DefaultRewardPolicy = RewardPolicy{
	MilestonePoints:      50,
	GoalCompletionPoints: 200,
	GoalBonusRate:        2,
}

type RewardEventKind string

const (
	RewardEventMilestone      RewardEventKind = "milestone"
	RewardEventGoalCompletion RewardEventKind = "goal_completion"
)

// RewardEvent is a completion the calculator prices. Weight carries the
// goal's target value so bigger goals pay a bigger completion bonus.
type RewardEvent struct {
	Kind   RewardEventKind
	Weight float64
}

// Points returns the award for one event. Pure; same event, same points.
func (p RewardPolicy) Points(event RewardEvent) int64 {
	switch event.Kind {
	case RewardEventMilestone:
		return p.MilestonePoints
	case RewardEventGoalCompletion:
		return p.GoalCompletionPoints + int64(event.Weight*p.GoalBonusRate)
	}
	return 0
}

// LevelConfig: points needed per level step
const BasePointsPerLevel = 100

// LevelThreshold returns the total points required to hold a level.
// Threshold(1) is zero so every user starts at level 1; the curve is a
// strictly increasing staircase, so level can never move backwards while
// points only grow.
func LevelThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	// T_n = floor(BasePointsPerLevel * (n-1)^1.5)
	return int64(float64(BasePointsPerLevel) * math.Pow(float64(level-1), 1.5))
}

// LevelForPoints returns the largest level whose threshold is covered by
// totalPoints. Pure; recomputing from the same total always agrees.
func LevelForPoints(totalPoints int64) int {
	level := 1
	for LevelThreshold(level+1) <= totalPoints {
		level++
	}
	return level
}
