package httpapi

import (
	"time"

	"promptcron/internal/expand"
	"promptcron/internal/schedule"
)

// ScheduleSpec mirrors schedule.Spec in the API's camelCase shape.
type ScheduleSpec struct {
	Type     string   `json:"type"`
	Time     string   `json:"time"`
	Timezone string   `json:"timezone"`
	Days     []string `json:"days,omitempty"`
}

// ScheduleRequest is the body of POST /api/schedules and /api/schedules/preview.
type ScheduleRequest struct {
	ID              string              `json:"id"`
	Emails          []string            `json:"emails"`
	Prompt          string              `json:"prompt"`
	EmailTitle      string              `json:"emailTitle"`
	PromptVariables map[string][]string `json:"promptVariables"`
	Schedule        ScheduleSpec        `json:"schedule"`
	StartDate       string              `json:"startDate,omitempty"`
	EndDate         string              `json:"endDate,omitempty"`
}

func (r ScheduleRequest) input() schedule.Input {
	return schedule.Input{
		ID:              r.ID,
		Emails:          r.Emails,
		Prompt:          r.Prompt,
		EmailTitle:      r.EmailTitle,
		PromptVariables: r.PromptVariables,
		Schedule: schedule.Spec{
			Type:     schedule.Kind(r.Schedule.Type),
			Time:     r.Schedule.Time,
			Timezone: r.Schedule.Timezone,
			Days:     r.Schedule.Days,
		},
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
}

type ScheduleResponse struct {
	ID              string              `json:"id"`
	Emails          []string            `json:"emails"`
	Prompt          string              `json:"prompt"`
	EmailTitle      string              `json:"emailTitle"`
	PromptVariables map[string][]string `json:"promptVariables"`
	Schedule        ScheduleSpec        `json:"schedule"`
	StartDate       string              `json:"startDate,omitempty"`
	EndDate         string              `json:"endDate,omitempty"`
	SourceFile      string              `json:"sourceFile,omitempty"`
	NextRuns        []string            `json:"nextRuns"`
}

func toResponse(sc schedule.Schedule, next []time.Time) ScheduleResponse {
	out := ScheduleResponse{
		ID:              sc.ID,
		Emails:          sc.Emails,
		Prompt:          sc.Prompt,
		EmailTitle:      sc.EmailTitle,
		PromptVariables: sc.PromptVariables,
		Schedule: ScheduleSpec{
			Type:     string(sc.Schedule.Type),
			Time:     sc.Schedule.Time,
			Timezone: sc.Schedule.Timezone,
			Days:     sc.Schedule.Days,
		},
		SourceFile: sc.SourceFile,
		NextRuns:   formatTimes(next),
	}
	if out.PromptVariables == nil {
		out.PromptVariables = map[string][]string{}
	}
	if sc.StartDate != nil {
		out.StartDate = sc.StartDate.Format(time.RFC3339)
	}
	if sc.EndDate != nil {
		out.EndDate = sc.EndDate.Format(time.RFC3339)
	}
	return out
}

type CreateResponse struct {
	Message  string           `json:"message"`
	Schedule ScheduleResponse `json:"schedule"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type VariantResponse struct {
	Prompt string            `json:"prompt"`
	Title  string            `json:"title"`
	Values map[string]string `json:"values"`
}

type PreviewResponse struct {
	Active   []string          `json:"activeVariables"`
	Count    int               `json:"count"`
	Variants []VariantResponse `json:"variants"`
	NextRuns []string          `json:"nextRuns"`
}

func toVariants(vs []expand.Variant) []VariantResponse {
	out := make([]VariantResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, VariantResponse{Prompt: v.Prompt, Title: v.Title, Values: v.Values})
	}
	return out
}

func formatTimes(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format(time.RFC3339))
	}
	return out
}
