/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package packer maps a day's plan chunks onto its actual clock-time study
// slots, splitting chunks at slot boundaries when they do not fit.
package packer

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/schedule"
)

// DefaultMinutesPerPage is the book fallback when no duration is known.
const DefaultMinutesPerPage = 2.0

// DurationModel converts a chunk's unit span into minutes. All lookups are
// plain maps resolved by the caller before invocation; the packer never does
// I/O.
type DurationModel struct {
	// Book minutes per page, per content. Falls back to DefaultMinutesPerPage.
	BookMinutesPerPage map[string]float64
	// Lecture episode lengths in minutes, per content, indexed by unit-1.
	LectureUnitMinutes map[string][]int
	// Custom content total minutes and total units, scaled by unit-span ratio.
	CustomTotalMinutes map[string]int
	CustomTotalUnits   map[string]int
}

// UnitMinutes returns the duration of one unit of a content item.
func (m DurationModel) UnitMinutes(contentID string, contentType schedule.ContentType, unit int) float64 {
	switch contentType {
	case schedule.ContentLecture:
		eps := m.LectureUnitMinutes[contentID]
		if unit >= 1 && unit <= len(eps) {
			return float64(eps[unit-1])
		}
		return DefaultMinutesPerPage
	case schedule.ContentCustom:
		total := m.CustomTotalMinutes[contentID]
		units := m.CustomTotalUnits[contentID]
		if total > 0 && units > 0 {
			return float64(total) / float64(units)
		}
		return DefaultMinutesPerPage
	default:
		if mpp, ok := m.BookMinutesPerPage[contentID]; ok && mpp > 0 {
			return mpp
		}
		return DefaultMinutesPerPage
	}
}

// ChunkMinutes returns the total duration of a chunk's unit range.
func (m DurationModel) ChunkMinutes(chunk schedule.PlanChunk) float64 {
	total := 0.0
	for unit := chunk.UnitStart; unit <= chunk.UnitEnd; unit++ {
		total += m.UnitMinutes(chunk.ContentID, chunk.Type, unit)
	}
	return total
}

// Item is a chunk queued for packing. Continued marks a remainder carried over
// from an earlier slot or day.
type Item struct {
	Chunk     schedule.PlanChunk
	Continued bool
}

// Packer packs chunks into study slots. Stateless; safe for concurrent
// per-date use.
type Packer struct {
	logger zerolog.Logger
}

// New constructs a packer.
func New(logger zerolog.Logger) *Packer {
	return &Packer{logger: logger.With().Str("component", "packer").Logger()}
}

// Pack performs greedy first-fit packing of chunks into the given StudyTime
// slots for one date, in the given chunk order and slot start order.
//
// Leftover holds the unit remainders that did not fit into the date's slots;
// the caller carries them into the next day or reports them as a packing
// shortfall. Non-fatal by contract.
func (p *Packer) Pack(
	date time.Time,
	items []Item,
	studySlots []schedule.TimeSlot,
	model DurationModel,
) (segments []schedule.TimeSegment, leftover []Item) {
	slots := make([]schedule.TimeSlot, 0, len(studySlots))
	for _, slot := range studySlots {
		if slot.Kind == schedule.SlotStudyTime && slot.Minutes() > 0 {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })

	queue := make([]Item, len(items))
	copy(queue, items)

	slotIdx := 0
	var cursor schedule.ClockMinute
	if len(slots) > 0 {
		cursor = slots[0].Start
	}

	for len(queue) > 0 {
		if slotIdx >= len(slots) {
			leftover = append(leftover, queue...)
			break
		}
		item := queue[0]
		queue = queue[1:]

		chunk := item.Chunk
		span := chunk.Units()
		remainingMinutes := model.ChunkMinutes(chunk)
		continued := item.Continued
		split := false

		for span > 0 {
			// Advance past exhausted slots first.
			if cursor >= slots[slotIdx].End {
				slotIdx++
				if slotIdx >= len(slots) {
					leftover = append(leftover, Item{Chunk: chunk, Continued: continued || split})
					span = 0
					break
				}
				cursor = slots[slotIdx].Start
				continue
			}

			slot := slots[slotIdx]
			slotLeft := float64(slot.End - cursor)

			if remainingMinutes <= slotLeft {
				end := cursor + schedule.ClockMinute(roundUp(remainingMinutes))
				if end > slot.End {
					end = slot.End
				}
				segments = append(segments, schedule.TimeSegment{
					ContentID:   chunk.ContentID,
					Type:        chunk.Type,
					Date:        date,
					UnitStart:   chunk.UnitStart,
					UnitEnd:     chunk.UnitEnd,
					Start:       cursor,
					End:         end,
					IsPartial:   continued || split,
					IsContinued: continued || split,
					IsReview:    chunk.IsReview,
				})
				cursor = end
				span = 0
				break
			}

			// Chunk overflows the slot: consume whole units that fit, at
			// least one, and carry the remainder forward.
			consumed := unitsFitting(model, chunk, slotLeft)
			consumedMinutes := 0.0
			for unit := chunk.UnitStart; unit < chunk.UnitStart+consumed; unit++ {
				consumedMinutes += model.UnitMinutes(chunk.ContentID, chunk.Type, unit)
			}
			segEnd := cursor + schedule.ClockMinute(roundUp(consumedMinutes))
			if segEnd > slot.End {
				segEnd = slot.End
			}
			segments = append(segments, schedule.TimeSegment{
				ContentID:   chunk.ContentID,
				Type:        chunk.Type,
				Date:        date,
				UnitStart:   chunk.UnitStart,
				UnitEnd:     chunk.UnitStart + consumed - 1,
				Start:       cursor,
				End:         segEnd,
				IsPartial:   true,
				IsContinued: continued || split,
				IsReview:    chunk.IsReview,
			})

			chunk.UnitStart += consumed
			span -= consumed
			remainingMinutes -= consumedMinutes
			split = true

			slotIdx++
			if slotIdx >= len(slots) {
				if span > 0 {
					leftover = append(leftover, Item{Chunk: chunk, Continued: true})
					span = 0
				}
				break
			}
			cursor = slots[slotIdx].Start
		}
	}

	return segments, leftover
}

// unitsFitting returns how many whole units of the chunk fit into the given
// minutes, floored, with a minimum of one so a split always makes progress.
func unitsFitting(model DurationModel, chunk schedule.PlanChunk, minutes float64) int {
	consumed := 0
	acc := 0.0
	for unit := chunk.UnitStart; unit <= chunk.UnitEnd; unit++ {
		acc += model.UnitMinutes(chunk.ContentID, chunk.Type, unit)
		if acc > minutes {
			break
		}
		consumed++
	}
	if consumed < 1 {
		consumed = 1
	}
	if consumed > chunk.Units() {
		consumed = chunk.Units()
	}
	return consumed
}

func roundUp(minutes float64) int {
	out := int(minutes)
	if minutes > float64(out) {
		out++
	}
	return out
}
