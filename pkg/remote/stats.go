package remote

import (
	"math"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-xrstream/pkg/session"
)

// Quality grades reported in ConnectionStats.Quality.
const (
	QualityExcellent uint32 = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityBad
)

// Quality reasons reported in ConnectionStats.QualityReasons.
const (
	ReasonEstimating uint32 = 1 << iota
	ReasonLatency
	ReasonBandwidth
	ReasonPacketLoss
)

// Quality thresholds.
const (
	highRTTMs     = 80
	highLossPct   = 2.0
	lowBandwidthP = 90
)

// videoCounters is the part of a stats report the client tracks between
// samples.
type videoCounters struct {
	at              time.Time
	pairs           uint64
	bytesReceived   uint64
	packetsReceived uint32
}

// statsFromReport folds a WebRTC stats report and local frame counters into
// connection stats. prev is the previous sample's counters, zero on the
// first call.
func statsFromReport(report webrtc.StatsReport, mb mailboxCounters, now time.Time, prev videoCounters) (session.ConnectionStats, videoCounters) {
	var cs session.ConnectionStats
	cur := videoCounters{at: now, pairs: mb.pairs}

	var jitterSum float64
	var videoStreams int
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			cs.TotalPacketsReceived += st.PacketsReceived
			if st.PacketsLost > 0 {
				cs.TotalPacketsLost += uint32(st.PacketsLost)
			}
			cs.TotalPacketsDropped += st.PacketsDiscarded
			cur.bytesReceived += st.BytesReceived
			if st.Kind == "video" {
				jitterSum += st.Jitter
				videoStreams++
			}
		case webrtc.ICECandidatePairStats:
			if !st.Nominated {
				continue
			}
			cs.RoundTripDelayMs = uint32(math.Round(st.CurrentRoundTripTime * 1000))
			cs.BandwidthAvailableKbps = uint32(st.AvailableIncomingBitrate / 1000)
		}
	}
	cur.packetsReceived = cs.TotalPacketsReceived
	if videoStreams > 0 {
		cs.JitterUs = uint32(math.Round(jitterSum / float64(videoStreams) * 1e6))
	}

	cs.FrameDeliveryTimeMs = mb.deliveryMs
	cs.FrameQueueTimeMs = mb.queueMs
	cs.FrameLatchTimeMs = mb.latchMs

	if !prev.at.IsZero() {
		if dt := now.Sub(prev.at).Seconds(); dt > 0 {
			cs.FramesPerSecond = float32(float64(mb.pairs-prev.pairs) / dt)
			cs.BandwidthUtilizationKbps = uint32(float64(cur.bytesReceived-prev.bytesReceived) * 8 / 1000 / dt)
		}
	}
	if cs.BandwidthAvailableKbps > 0 {
		cs.BandwidthUtilizationPct = cs.BandwidthUtilizationKbps * 100 / cs.BandwidthAvailableKbps
	}

	cs.Quality, cs.QualityReasons = grade(cs, prev.at.IsZero())
	return cs, cur
}

// grade assigns a quality level, lowering it one step per problem found.
func grade(cs session.ConnectionStats, first bool) (uint32, uint32) {
	if first {
		return QualityGood, ReasonEstimating
	}
	var reasons uint32
	if cs.RoundTripDelayMs > highRTTMs {
		reasons |= ReasonLatency
	}
	if cs.BandwidthUtilizationPct > lowBandwidthP {
		reasons |= ReasonBandwidth
	}
	total := cs.TotalPacketsReceived + cs.TotalPacketsLost
	if total > 0 && float64(cs.TotalPacketsLost)*100/float64(total) > highLossPct {
		reasons |= ReasonPacketLoss
	}

	q := QualityExcellent
	for r := reasons; r != 0; r &= r - 1 {
		q++
	}
	return q, reasons
}
