package game

// TeamSizes maps table size to the required team size for quests 1-5.
// Fixed by the rulebook, never interpolated.
var TeamSizes = map[int][5]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// TeamSize returns the required team size for the given table size and
// 1-indexed round, or 0 when either is out of range.
func TeamSize(numPlayers, round int) int {
	sizes, ok := TeamSizes[numPlayers]
	if !ok || round < 1 || round > 5 {
		return 0
	}
	return sizes[round-1]
}

// FailThreshold is the number of fail cards needed to fail the quest:
// 2 on the fourth quest at tables of 7 or more, 1 everywhere else.
func FailThreshold(numPlayers, round int) int {
	if numPlayers >= 7 && round == 4 {
		return 2
	}
	return 1
}

// MajorityApproved reports whether strictly more than half the votes approve.
func MajorityApproved(votes map[string]bool) bool {
	approve := 0
	for _, v := range votes {
		if v {
			approve++
		}
	}
	return approve > len(votes)/2
}
