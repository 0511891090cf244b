package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/cadenza/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	convey.Convey("Given the recording statuses", t, func() {
		convey.Convey("Then only scored and closed should be terminal", func() {
			convey.So(model.StatusPending.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusUnderReview.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusScored.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusClosed.Terminal(), convey.ShouldBeTrue)
		})

		convey.Convey("Then every listed status should be valid", func() {
			for _, s := range model.Statuses {
				convey.So(s.Valid(), convey.ShouldBeTrue)
			}
			convey.So(model.Status("archived").Valid(), convey.ShouldBeFalse)
		})
	})
}

func TestRecordingClone(t *testing.T) {
	convey.Convey("Given a recording with score and result", t, func() {
		score := 81
		rec := model.Recording{
			ID:        "rec-1",
			Identity:  "ada@example.com",
			Status:    model.StatusScored,
			Score:     &score,
			Result:    &model.Result{Status: model.RemoteCompleted, Raw: json.RawMessage(`{"status":"completed"}`)},
			CreatedAt: time.Now(),
		}

		convey.Convey("When cloning and mutating the clone", func() {
			clone := rec.Clone()
			*clone.Score = 10
			clone.Result.Status = "mutated"
			clone.Result.Raw[2] = 'X'

			convey.Convey("Then the original should be untouched", func() {
				convey.So(*rec.Score, convey.ShouldEqual, 81)
				convey.So(rec.Result.Status, convey.ShouldEqual, model.RemoteCompleted)
				convey.So(string(rec.Result.Raw), convey.ShouldEqual, `{"status":"completed"}`)
			})
		})

		convey.Convey("When cloning a recording without score", func() {
			clone := model.Recording{ID: "rec-2"}.Clone()

			convey.Convey("Then the pointers should stay nil", func() {
				convey.So(clone.Score, convey.ShouldBeNil)
				convey.So(clone.Result, convey.ShouldBeNil)
			})
		})
	})
}

func TestEvaluationDecoding(t *testing.T) {
	convey.Convey("Given a scorer result body", t, func() {
		body := `{"status":"completed","results":[{"final_score":0.81},{"label":"take-2"}]}`

		convey.Convey("When decoding it", func() {
			var ev model.Evaluation
			err := json.Unmarshal([]byte(body), &ev)

			convey.Convey("Then missing scores should decode as nil", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.Status, convey.ShouldEqual, model.RemoteCompleted)
				convey.So(len(ev.Results), convey.ShouldEqual, 2)
				convey.So(*ev.Results[0].FinalScore, convey.ShouldEqual, 0.81)
				convey.So(ev.Results[1].FinalScore, convey.ShouldBeNil)
			})
		})
	})
}
