// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaia

import (
	"fmt"
	"time"
)

// Statistics tracks frame traffic and error counts for one link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesReceived  uint64
	FramesSent      uint64
	Responses       uint64
	Notifications   uint64
	ErrorResponses  uint64
	Unsolicited     uint64
	GarbageBytes    uint64
	Timeouts        uint64
	WriteFailures   uint64
	Malformed       uint64
	AnomalousValues uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Received records an inbound frame. matched reports whether the frame
// resolved a pending command.
func (s *Statistics) Received(f Frame, matched bool) {
	s.FramesReceived++
	switch {
	case f.IsError() && f.Command&ResponseFlag != 0:
		s.ErrorResponses++
	case matched:
		s.Responses++
	case f.Command&ResponseFlag != 0:
		s.Unsolicited++
	default:
		s.Notifications++
	}

	for _, v := range ValidateFrame(f) {
		switch v.Type {
		case AnomalyLengthMismatch:
			s.Malformed++
		case AnomalyInvalidValue:
			s.AnomalousValues++
		}
	}
	s.LastUpdateTime = time.Now()
}

// Sent records an outbound frame
func (s *Statistics) Sent() {
	s.FramesSent++
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesReceived) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.ErrorResponses + s.Timeouts + s.WriteFailures + s.Malformed + s.AnomalousValues
}

// Snapshot returns a copy with rates filled in
func (s *Statistics) Snapshot() Statistics {
	s.CalculateRates()
	return *s
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var responsePercent, notifPercent, errorPercent float64
	if s.FramesReceived > 0 {
		responsePercent = float64(s.Responses) * 100.0 / float64(s.FramesReceived)
		notifPercent = float64(s.Notifications) * 100.0 / float64(s.FramesReceived)
		errorPercent = float64(s.ErrorResponses) * 100.0 / float64(s.FramesReceived)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Received: %8d\n", s.FramesReceived)
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Responses:       %8d (%.1f%%)\n", s.Responses, responsePercent)
	result += fmt.Sprintf("Notifications:   %8d (%.1f%%)\n", s.Notifications, notifPercent)

	if s.ErrorResponses > 0 {
		result += fmt.Sprintf("Error Responses: %8d (%.1f%%)\n", s.ErrorResponses, errorPercent)
	}
	if s.Unsolicited > 0 {
		result += fmt.Sprintf("Unsolicited:     %8d\n", s.Unsolicited)
	}
	if s.GarbageBytes > 0 {
		result += fmt.Sprintf("Garbage Bytes:   %8d\n", s.GarbageBytes)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.WriteFailures > 0 {
		result += fmt.Sprintf("Write Failures:  %8d\n", s.WriteFailures)
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.Malformed)
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
