/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/studyforge/studyforge/internal/allocator"
	"github.com/studyforge/studyforge/internal/availability"
	"github.com/studyforge/studyforge/internal/packer"
	"github.com/studyforge/studyforge/internal/schedule"
)

var generateJSON bool

var generateCmd = &cobra.Command{
	Use:   "generate <plan.yaml>",
	Short: "Generate a schedule from a plan definition file, without a database",
	Long:  "Run the full scheduling pipeline on a YAML plan definition and print the resulting entries. Useful for trying out plan settings before creating a plan group.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the schedule as JSON")
}

// planFile is the YAML shape accepted by the generate command.
type planFile struct {
	PeriodStart string `yaml:"period_start"`
	PeriodEnd   string `yaml:"period_end"`

	StudyDays   int    `yaml:"study_days"`
	ReviewDays  int    `yaml:"review_days"`
	ReviewScope string `yaml:"review_scope"`

	SelfStudyOnHolidays  bool `yaml:"self_study_on_holidays"`
	SelfStudyOnStudyDays bool `yaml:"self_study_on_study_days"`
	WeakSubjectFocus     bool `yaml:"weak_subject_focus"`

	Lunch *struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"lunch"`

	Blocks []struct {
		DayOfWeek int    `yaml:"day_of_week"`
		Start     string `yaml:"start"`
		End       string `yaml:"end"`
	} `yaml:"blocks"`

	Exclusions []struct {
		Date   string `yaml:"date"`
		Kind   string `yaml:"kind"`
		Reason string `yaml:"reason"`
	} `yaml:"exclusions"`

	Academies []struct {
		Name          string `yaml:"name"`
		DayOfWeek     int    `yaml:"day_of_week"`
		Start         string `yaml:"start"`
		End           string `yaml:"end"`
		TravelMinutes int    `yaml:"travel_minutes"`
	} `yaml:"academies"`

	Contents []struct {
		ID                   string  `yaml:"id"`
		Title                string  `yaml:"title"`
		Type                 string  `yaml:"type"`
		Subject              string  `yaml:"subject"`
		TotalUnits           int     `yaml:"total_units"`
		PriorityWeight       float64 `yaml:"priority_weight"`
		Strategic            bool    `yaml:"strategic"`
		StrategicDaysPerWeek int     `yaml:"strategic_days_per_week"`
		MinutesPerPage       float64 `yaml:"minutes_per_page"`
		EpisodeMinutes       []int   `yaml:"episode_minutes"`
		TotalDurationMinutes int     `yaml:"total_duration_minutes"`
	} `yaml:"contents"`

	Constraints struct {
		Required []string `yaml:"required"`
		Excluded []string `yaml:"excluded"`
		Mode     string   `yaml:"mode"`
	} `yaml:"constraints"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read plan file: %w", err)
	}

	var plan planFile
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("parse plan file: %w", err)
	}

	periodStart, err := schedule.ParseDate(plan.PeriodStart)
	if err != nil {
		return fmt.Errorf("period_start: %w", err)
	}
	periodEnd, err := schedule.ParseDate(plan.PeriodEnd)
	if err != nil {
		return fmt.Errorf("period_end: %w", err)
	}

	policy := schedule.DefaultPolicy()
	if plan.StudyDays > 0 {
		policy.StudyDays = plan.StudyDays
		policy.ReviewDays = plan.ReviewDays
	}
	if plan.ReviewScope != "" {
		policy.ReviewScope = schedule.ReviewScope(plan.ReviewScope)
	}
	policy.SelfStudyOnHolidays = plan.SelfStudyOnHolidays
	policy.SelfStudyOnStudyDays = plan.SelfStudyOnStudyDays
	policy.WeakSubjectFocus = plan.WeakSubjectFocus
	if plan.Lunch != nil {
		start, err := schedule.ParseClock(plan.Lunch.Start)
		if err != nil {
			return fmt.Errorf("lunch start: %w", err)
		}
		end, err := schedule.ParseClock(plan.Lunch.End)
		if err != nil {
			return fmt.Errorf("lunch end: %w", err)
		}
		policy.Lunch = &schedule.TimeRange{Start: start, End: end}
	}

	var blocks []schedule.TimeBlock
	for i, b := range plan.Blocks {
		start, err := schedule.ParseClock(b.Start)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		end, err := schedule.ParseClock(b.End)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, schedule.TimeBlock{Weekday: b.DayOfWeek, Start: start, End: end})
	}

	var exclusions []schedule.Exclusion
	for i, e := range plan.Exclusions {
		date, err := schedule.ParseDate(e.Date)
		if err != nil {
			return fmt.Errorf("exclusion %d: %w", i, err)
		}
		exclusions = append(exclusions, schedule.Exclusion{
			Date:   date,
			Kind:   schedule.ExclusionKind(e.Kind),
			Reason: e.Reason,
		})
	}

	var busy []schedule.BusyPeriod
	for i, a := range plan.Academies {
		start, err := schedule.ParseClock(a.Start)
		if err != nil {
			return fmt.Errorf("academy %d: %w", i, err)
		}
		end, err := schedule.ParseClock(a.End)
		if err != nil {
			return fmt.Errorf("academy %d: %w", i, err)
		}
		busy = append(busy, schedule.BusyPeriod{
			Weekday:       a.DayOfWeek,
			Start:         start,
			End:           end,
			Label:         a.Name,
			TravelMinutes: a.TravelMinutes,
		})
	}

	var contents []schedule.ContentItem
	model := packer.DurationModel{
		BookMinutesPerPage: make(map[string]float64),
		LectureUnitMinutes: make(map[string][]int),
		CustomTotalMinutes: make(map[string]int),
		CustomTotalUnits:   make(map[string]int),
	}
	for i, c := range plan.Contents {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("content-%d", i+1)
		}
		contents = append(contents, schedule.ContentItem{
			ID:                   id,
			Type:                 schedule.ContentType(c.Type),
			Kind:                 schedule.KindLearning,
			Title:                c.Title,
			TotalUnits:           c.TotalUnits,
			SubjectCategory:      c.Subject,
			PriorityWeight:       c.PriorityWeight,
			Strategic:            c.Strategic,
			StrategicDaysPerWeek: c.StrategicDaysPerWeek,
			TotalDurationMinutes: c.TotalDurationMinutes,
			EpisodeMinutes:       c.EpisodeMinutes,
		})
		switch schedule.ContentType(c.Type) {
		case schedule.ContentBook:
			if c.MinutesPerPage > 0 {
				model.BookMinutesPerPage[id] = c.MinutesPerPage
			}
		case schedule.ContentLecture:
			if len(c.EpisodeMinutes) > 0 {
				model.LectureUnitMinutes[id] = c.EpisodeMinutes
			}
		default:
			if c.TotalDurationMinutes > 0 && c.TotalUnits > 0 {
				model.CustomTotalMinutes[id] = c.TotalDurationMinutes
				model.CustomTotalUnits[id] = c.TotalUnits
			}
		}
	}

	constraints := schedule.SubjectConstraints{
		Required: plan.Constraints.Required,
		Excluded: plan.Constraints.Excluded,
		Handling: schedule.ConstraintHandling(plan.Constraints.Mode),
	}

	nop := zerolog.Nop()
	days, err := availability.New(nop).Compute(periodStart, periodEnd, blocks, exclusions, busy, policy)
	if err != nil {
		return fmt.Errorf("compute availability: %w", err)
	}

	allocated, err := allocator.New(nop).Allocate(days, contents, constraints, policy)
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}

	pack := packer.New(nop)
	byDate := make(map[string][]packer.Item)
	for _, chunk := range allocated.Chunks {
		key := schedule.DateKey(chunk.Date)
		byDate[key] = append(byDate[key], packer.Item{Chunk: chunk})
	}

	var segments []schedule.TimeSegment
	var carry []packer.Item
	for _, day := range days {
		items := append(append([]packer.Item(nil), carry...), byDate[schedule.DateKey(day.Date)]...)
		if len(items) == 0 {
			carry = nil
			continue
		}
		slots := day.StudySlots()
		if len(slots) == 0 {
			carry = items
			continue
		}
		packed, leftover := pack.Pack(day.Date, items, slots, model)
		segments = append(segments, packed...)
		carry = leftover
	}

	if generateJSON {
		out := map[string]any{
			"calendar":   days,
			"segments":   segments,
			"violations": allocated.Violations,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	titles := make(map[string]string, len(contents))
	for _, c := range contents {
		titles[c.ID] = c.Title
	}

	for _, v := range allocated.Violations {
		fmt.Printf("warning: %s (%s)\n", v.Message, v.Subject)
	}
	for _, seg := range segments {
		marker := " "
		if seg.IsReview {
			marker = "R"
		}
		title := titles[seg.ContentID]
		if title == "" {
			title = seg.ContentID
		}
		fmt.Printf("%s %s  %s-%s  %-24s units %d-%d\n",
			marker, schedule.DateKey(seg.Date), seg.Start, seg.End, title, seg.UnitStart, seg.UnitEnd)
	}
	if len(carry) > 0 {
		total := 0
		for _, item := range carry {
			total += item.Chunk.Units()
		}
		fmt.Printf("shortfall: %d units did not fit into the available study time\n", total)
	}
	return nil
}
