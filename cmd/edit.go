package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/history"
	"github.com/sells-group/tier-ranker/internal/model"
	"github.com/sells-group/tier-ranker/internal/ranker"
	"github.com/sells-group/tier-ranker/internal/store"
	"github.com/sells-group/tier-ranker/internal/tables"
)

var (
	editRanks  = map[model.RatingField]*string{}
	editUser   string
	editReason string
)

// editFlags maps flag names to the rating field they set.
var editFlags = []struct {
	flag  string
	field model.RatingField
}{
	{"price", model.FieldPriceRank},
	{"cost", model.FieldCostEffectivenessRank},
	{"content", model.FieldContentRank},
	{"evidence", model.FieldEvidenceRank},
	{"safety", model.FieldSafetyRank},
	{"overall", model.FieldOverallRank},
}

var editCmd = &cobra.Command{
	Use:   "edit <product-id>",
	Short: "Manually set a product's tier ranks",
	Long: "Replaces a product's tier ranks with the given values and records a manual history entry. " +
		"Unspecified axes keep their stored rank. The overall rank is derived from the axes unless --overall is given.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		edits := make(map[model.RatingField]string)
		for _, f := range editFlags {
			if cmd.Flags().Changed(f.flag) {
				edits[f.field] = *editRanks[f.field]
			}
		}
		if len(edits) == 0 {
			return eris.New("edit: no ranks given")
		}

		tb, err := loadTables()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		h, err := runEdit(ctx, st, tb, history.NewTracker(), args[0], edits, editUser, editReason)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s: %d rank change(s) recorded as %s (confidence %.2f)\n",
			h.ProductID, len(h.Changes), h.ID, h.Confidence)
		for _, c := range h.Changes {
			fmt.Fprintf(os.Stdout, "  %s: %s -> %s\n", c.Field, c.OldValue, c.NewValue)
		}
		return nil
	},
}

// buildEdit merges edits into p's stored ranks. Axis ranks must end up complete;
// the overall rank and score are derived from the axes unless overall is edited.
// Evidence, safety and overall scores are kept inside the bands of the final ranks.
func buildEdit(p *model.ProductRecord, tb *tables.Tables, edits map[model.RatingField]string) (model.TierRatings, model.Scores, error) {
	var after model.TierRatings
	if p.TierRatings != nil {
		after = *p.TierRatings
	}

	for _, f := range model.RatingFields {
		v, ok := edits[f]
		if !ok {
			continue
		}
		r, err := model.ParseRank(v)
		if err != nil {
			return model.TierRatings{}, model.Scores{}, eris.Wrapf(err, "edit: %s", f)
		}
		if r == model.RankSPlus && f != model.FieldOverallRank {
			return model.TierRatings{}, model.Scores{}, eris.Errorf("edit: %s cannot be S+; only the overall rank can", f)
		}
		after = after.With(f, r)
	}

	for _, f := range model.AxisFields {
		if !after.Get(f).Valid() {
			return model.TierRatings{}, model.Scores{}, eris.Errorf("edit: %s has no stored rank and none was given", f)
		}
	}

	category := tables.DefaultCategory
	if m, skipped := ranker.Extract(tb, p); skipped == nil {
		category = m.Category
	}
	overall, score := ranker.OverallFromAxes(after, tb.WeightsFor(category))
	if _, ok := edits[model.FieldOverallRank]; !ok {
		after.OverallRank = overall
	}

	var scores model.Scores
	if p.Scores != nil {
		scores = *p.Scores
	}
	scores.Overall = score
	scores.Evidence = scoreFor(after.EvidenceRank, scores.Evidence)
	scores.Safety = scoreFor(after.SafetyRank, scores.Safety)
	scores.Overall = scoreFor(after.OverallRank, scores.Overall)
	return after, scores, nil
}

// scoreFor pulls score into the band r maps to, leaving it alone if already inside.
func scoreFor(r model.Rank, score float64) float64 {
	band, ok := model.ExpectedScoreRange(r)
	if !ok {
		return score
	}
	return band.Clamp(score)
}

// runEdit applies a manual rank edit to one product and appends its history entry.
func runEdit(ctx context.Context, st store.Store, tb *tables.Tables, tracker *history.Tracker, productID string, edits map[model.RatingField]string, user, reason string) (model.RankChangeHistory, error) {
	if reason == "" {
		return model.RankChangeHistory{}, eris.New("edit: --reason is required")
	}

	p, err := st.GetProduct(ctx, productID)
	if err != nil {
		return model.RankChangeHistory{}, eris.Wrap(err, "edit")
	}

	after, scores, err := buildEdit(p, tb, edits)
	if err != nil {
		return model.RankChangeHistory{}, err
	}

	var before model.TierRatings
	if p.TierRatings != nil {
		before = *p.TierRatings
	}
	h := tracker.RecordRankChange(before, after, model.SourceManual, history.ChangeMeta{
		ProductID:   p.ID,
		ProductName: p.Name,
		UserID:      user,
		Reason:      reason,
	})
	if len(h.Changes) == 0 {
		return model.RankChangeHistory{}, eris.Errorf("edit: ranks of %s are unchanged", productID)
	}

	if err := st.ReplaceRatings(ctx, model.RatingUpdate{
		ProductID:    p.ID,
		TierRatings:  after,
		Scores:       scores,
		CalculatedAt: time.Now().UTC(),
	}); err != nil {
		return model.RankChangeHistory{}, eris.Wrap(err, "edit: replace ratings")
	}
	if err := st.AppendHistory(ctx, h); err != nil {
		return model.RankChangeHistory{}, eris.Wrap(err, "edit: ranks saved but history entry failed")
	}

	zap.L().Info("manual rank edit",
		zap.String("product_id", p.ID),
		zap.String("user_id", user),
		zap.Int("changes", len(h.Changes)),
		zap.Float64("confidence", h.Confidence),
	)
	return h, nil
}

func init() {
	for _, f := range editFlags {
		editRanks[f.field] = editCmd.Flags().String(f.flag, "", fmt.Sprintf("new %s", f.field))
	}
	editCmd.Flags().StringVar(&editUser, "user", os.Getenv("USER"), "user ID recorded in history")
	editCmd.Flags().StringVar(&editReason, "reason", "", "reason recorded in history (required)")
	_ = editCmd.MarkFlagRequired("reason")
	rootCmd.AddCommand(editCmd)
}
