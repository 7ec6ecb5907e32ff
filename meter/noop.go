package meter

import "github.com/lernio/mentor"

// NoopMeter discards all events. Useful as an explicit placeholder when
// composing meters.
type NoopMeter struct{}

var _ mentor.Meter = NoopMeter{}

func (NoopMeter) OnAdmit(mentor.AdmitEvent)   {}
func (NoopMeter) OnResult(mentor.ResultEvent) {}
func (NoopMeter) OnReview(mentor.ReviewEvent) {}
