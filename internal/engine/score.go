package engine

import "strconv"

// Score bounds. Mate scores live in (MateThreshold, MateScore]; a mate
// found p plies from the root scores MateScore-p, so shorter mates are
// strictly better and everything outside that band is a normal evaluation.
const (
	Infinity      = 32000
	MateScore     = 31000
	MaxPly        = 128
	MateThreshold = MateScore - MaxPly
	DrawScore     = 0
)

// MateIn is the score for delivering mate ply half-moves from the root.
func MateIn(ply int) int {
	return MateScore - ply
}

// MatedIn is the score for being mated ply half-moves from the root.
func MatedIn(ply int) int {
	return -MateScore + ply
}

// IsMateScore reports whether score encodes a forced mate for either side.
func IsMateScore(score int) bool {
	return score >= MateThreshold || score <= -MateThreshold
}

// AdjustScoreToTT converts a root-relative mate score into a node-relative
// one so that it stays correct when the entry is reached via another path.
func AdjustScoreToTT(score, ply int) int {
	switch {
	case score >= MateThreshold:
		return score + ply
	case score <= -MateThreshold:
		return score - ply
	}
	return score
}

// AdjustScoreFromTT is the inverse of AdjustScoreToTT.
func AdjustScoreFromTT(score, ply int) int {
	switch {
	case score >= MateThreshold:
		return score - ply
	case score <= -MateThreshold:
		return score + ply
	}
	return score
}

// ScoreToString renders a score in UCI form: "cp 34" or "mate -2".
func ScoreToString(score int) string {
	switch {
	case score >= MateThreshold:
		return "mate " + strconv.Itoa((MateScore-score+1)/2)
	case score <= -MateThreshold:
		return "mate " + strconv.Itoa(-(MateScore+score)/2)
	}
	return "cp " + strconv.Itoa(score)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
