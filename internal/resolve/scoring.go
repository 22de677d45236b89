package resolve

import (
	"strconv"

	"cardcat/internal/card"
)

// Scoring weights. These are calibration constants tuned against real
// decklists; changing them changes which printing wins.
const (
	scoreExactName     = 100.0
	scoreFrontFace     = 90.0
	penaltyArtSeries   = 50.0
	collectorTiebreak  = 0.09
	maxCollectorDigits = 9
)

// Score ranks rec as a match for name.
func Score(rec card.Record, name string) float64 {
	var score float64
	faces := rec.FaceNames()
	switch {
	case card.SameName(rec.Name, name):
		score += scoreExactName
	case len(faces) > 1 && card.SameName(faces[0], name):
		score += scoreFrontFace
	}
	if rec.Layout == card.LayoutArtSeries {
		score -= penaltyArtSeries
	}
	if n, ok := collectorNumberValue(rec.CollectorNumber); ok {
		score += collectorTiebreak / float64(1+n)
	}
	return score
}

// collectorNumberValue returns the first run of digits in number.
func collectorNumberValue(number string) (int, bool) {
	start := -1
	end := len(number)
	for i, r := range number {
		isDigit := r >= '0' && r <= '9'
		if start < 0 && isDigit {
			start = i
		} else if start >= 0 && !isDigit {
			end = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	digits := number[start:end]
	if len(digits) > maxCollectorDigits {
		digits = digits[:maxCollectorDigits]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// pickBest returns the highest scoring candidate. Exact ties go to the newest
// release and then the lowest id, so candidate order never matters.
func pickBest(candidates []card.Record, name string) card.Record {
	best := candidates[0]
	bestScore := Score(best, name)
	for _, rec := range candidates[1:] {
		score := Score(rec, name)
		if outranks(rec, score, best, bestScore) {
			best, bestScore = rec, score
		}
	}
	return best
}

func outranks(a card.Record, scoreA float64, b card.Record, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if a.ReleasedAt != b.ReleasedAt {
		return a.ReleasedAt > b.ReleasedAt
	}
	return a.ID < b.ID
}
