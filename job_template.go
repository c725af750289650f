package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// rawJobTemplate is one message from the job template producer.
type rawJobTemplate struct {
	CreatedAt  int64  `json:"created_at_ts"`
	Height     uint64 `json:"height"`
	NodeJobID  uint64 `json:"jobId"`
	Difficulty uint64 `json:"difficulty"`
	PrePow     string `json:"prePow"`
}

var (
	errTemplateHeight     = errors.New("template height does not match pre-pow")
	errTemplateDifficulty = errors.New("template difficulty must be positive")
)

func parseRawJobTemplate(payload []byte) (rawJobTemplate, error) {
	var tpl rawJobTemplate
	if err := fastJSONUnmarshal(payload, &tpl); err != nil {
		return tpl, fmt.Errorf("decode job template: %w", err)
	}
	return tpl, nil
}

// newGrinJob builds a job from a template and a repository-unique id.
func newGrinJob(tpl rawJobTemplate, id uint64, now time.Time) (*GrinJob, error) {
	prePow, err := parsePrePow(tpl.PrePow)
	if err != nil {
		return nil, err
	}
	if tpl.Difficulty == 0 {
		return nil, errTemplateDifficulty
	}
	if prePow.Height() != tpl.Height {
		return nil, fmt.Errorf("%w: template %d, pre-pow %d", errTemplateHeight, tpl.Height, prePow.Height())
	}
	createdAt := now
	if tpl.CreatedAt > 0 {
		createdAt = time.Unix(tpl.CreatedAt, 0).UTC()
	}
	return &GrinJob{
		id:         id,
		height:     tpl.Height,
		prePow:     prePow,
		prePowStr:  strings.TrimSpace(tpl.PrePow),
		difficulty: tpl.Difficulty,
		nodeJobID:  tpl.NodeJobID,
		createdAt:  createdAt,
	}, nil
}

// grinJobBuilder adapts newGrinJob to the feed's decode hook.
func grinJobBuilder(payload []byte, id uint64, now time.Time) (*GrinJob, error) {
	tpl, err := parseRawJobTemplate(payload)
	if err != nil {
		return nil, err
	}
	return newGrinJob(tpl, id, now)
}
