package main

import (
	"context"
	stdjson "encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type checker interface {
	RunCheck(ctx context.Context, date *time.Time) string
}

// envelope carries the fields used to tell an API Gateway request from an
// EventBridge schedule event.
type envelope struct {
	HTTPMethod string `json:"httpMethod"`
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
	Date       string `json:"date"`
}

// ScheduledResult is returned to EventBridge and direct invocations.
type ScheduledResult struct {
	Report string `json:"report"`
}

type handler struct {
	checker checker
	loc     *time.Location
	logger  zerolog.Logger
}

func (h *handler) Handle(ctx context.Context, raw stdjson.RawMessage) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	if env.HTTPMethod != "" {
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		return h.httpTrigger(ctx, req), nil
	}

	var date *time.Time
	switch {
	case env.Source == "aws.events":
		var ev events.CloudWatchEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		d := ev.Time.In(h.loc)
		date = &d
	case env.Date != "":
		d, err := time.Parse(dateLayout, env.Date)
		if err != nil {
			return nil, err
		}
		date = &d
	}

	report := h.checker.RunCheck(ctx, date)
	h.logger.Info().Str("report", report).Msg("scheduled check finished")
	return ScheduledResult{Report: report}, nil
}

func (h *handler) httpTrigger(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "text/plain; charset=utf-8"}

	var date *time.Time
	if raw := req.QueryStringParameters["date"]; raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return events.APIGatewayProxyResponse{
				StatusCode: 400,
				Headers:    headers,
				Body:       "Invalid date format. Use YYYY-MM-DD",
			}
		}
		date = &d
	}

	return events.APIGatewayProxyResponse{
		StatusCode: 200,
		Headers:    headers,
		Body:       h.checker.RunCheck(ctx, date),
	}
}
