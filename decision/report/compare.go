package report

import (
	"sort"

	"urban-greenery/decision/climate"
	"urban-greenery/decision/workflow"
)

// Row is one city in a comparison.
type Row struct {
	City            string  `json:"city"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	GreenCover      float64 `json:"green_cover"`
	CoverClass      string  `json:"cover_class"`
	ResilienceScore float64 `json:"resilience_score"`
	Band            Band    `json:"band"`
	TreesToPlant    int     `json:"trees_to_plant"`
	Error           string  `json:"error,omitempty"`
}

// Compare pairs records with their outcomes. A failed city keeps its row
// with a zero score and the error text.
func Compare(recs []climate.CityRecord, outcomes []workflow.Outcome) []Row {
	rows := make([]Row, 0, len(recs))
	for i, rec := range recs {
		row := Row{
			City:       rec.City,
			Lat:        rec.Lat,
			Lon:        rec.Lon,
			GreenCover: rec.GreenCover,
			CoverClass: CoverClass(rec.GreenCover),
			Band:       BandLow,
		}
		if i < len(outcomes) {
			o := outcomes[i]
			switch {
			case o.Err != nil:
				row.Error = o.Err.Error()
			case o.Result != nil:
				score := o.Result.Bundle.Recommendation.GreenResilienceScore
				row.ResilienceScore = score
				row.Band = ScoreBand(score)
				row.TreesToPlant = o.Result.Bundle.Plan.TreesToPlant
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Rank returns a copy of rows ordered by descending resilience score.
// Ties keep input order.
func Rank(rows []Row) []Row {
	out := append([]Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ResilienceScore > out[j].ResilienceScore
	})
	return out
}
