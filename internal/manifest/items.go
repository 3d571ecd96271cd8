package manifest

import (
	"fmt"
	"time"

	"github.com/bij27/hohm.studio/internal/pose"
	"github.com/bij27/hohm.studio/internal/scoring"
	"github.com/bij27/hohm.studio/internal/session"
)

// SessionItems converts the manifest's segments into engine items. The
// primary scoring target comes from the segment itself; acceptable
// variations come from the library, mirrored for left-side segments.
func (m *Manifest) SessionItems(lib *Library) ([]session.Item, error) {
	items := make([]session.Item, 0, len(m.Segments))
	for _, seg := range m.Segments {
		targets := []scoring.Target{{
			Name:      seg.Name,
			Angles:    seg.Angles.Active,
			Landmarks: seg.Landmarks.Active,
		}}
		if p, ok := lib.Get(seg.PoseID); ok {
			for _, v := range p.Variations {
				angles := v.Angles
				if seg.Side == "left" {
					angles = pose.MirrorAngles(angles)
				}
				targets = append(targets, scoring.Target{
					Name:      v.Name,
					Angles:    angles,
					Landmarks: seg.Landmarks.Active,
				})
			}
		}
		ref, err := scoring.NewReference(targets...)
		if err != nil {
			return nil, fmt.Errorf("manifest: segment %d (%s): %w", seg.Index, seg.PoseID, err)
		}

		holdSec := seg.HoldDurationMs / 1000
		if holdSec <= 0 {
			holdSec = 1
		}
		items = append(items, session.Item{
			PoseID:           seg.PoseID,
			Name:             seg.Name,
			Side:             seg.Side,
			HoldSeconds:      holdSec,
			Reference:        ref,
			TransitionMs:     seg.Interpolation.DurationMs,
			TransitionEasing: seg.Interpolation.Easing,
		})
	}
	return items, nil
}

// SessionTiming converts the manifest's timing block into engine timing.
func (m *Manifest) SessionTiming() session.Timing {
	return session.Timing{
		InstructionTimeout:  time.Duration(m.Timing.InstructionDurationMs) * time.Millisecond,
		EstablishingTimeout: time.Duration(m.Timing.EstablishingTimeoutMs) * time.Millisecond,
		FormThreshold:       m.Timing.FormMatchThreshold,
	}
}
