package main

import "time"

const poolSoftwareName = "grinPool"

// Grin consensus parameters used by proof verification and scaling.
const (
	grinProofSize         = 42
	grinBaseEdgeBits      = 24
	grinSecondPowEdgeBits = 29
	grinMinEdgeBits       = 10
	grinMaxEdgeBits       = 63

	// One block per minute.
	grinWeekHeight = 7 * 24 * 60
	grinYearHeight = 52 * grinWeekHeight

	// version(2) height(8) timestamp(8) six 32-byte roots/hashes,
	// output/kernel mmr sizes(8+8), total difficulty(8), secondary scaling(4).
	grinPrePowSize = 2 + 8 + 8 + 6*32 + 8 + 8 + 8 + 4
)

const (
	// highDiffShareRatio is the share-to-network difficulty ratio above which
	// a share is logged for operators.
	highDiffShareRatio = 1024

	// Input limits for frontend-provided submission fields.
	maxWorkerNameLen   = 256
	maxSubmissionBytes = 16 * 1024
	maxDifficultyTiers = 16

	jobSubscriberBuffer = 8
	jobNotifyQueueDepth = 64

	solvedShareReplayInterval = 5 * time.Second
	jobExpirySweepInterval    = 10 * time.Second
	statusLogInterval         = time.Minute
)

// ZMQ socket tuning shared by the feed, intake, and publisher sockets.
const (
	defaultZMQReceiveTimeout     = time.Second
	defaultZMQRecreateBackoffMin = 500 * time.Millisecond
	defaultZMQRecreateBackoffMax = 30 * time.Second
	defaultZMQReconnectInterval  = time.Second
	defaultZMQReconnectMax       = 10 * time.Second
	defaultZMQHeartbeatInterval  = 5 * time.Second
	defaultZMQHeartbeatTimeout   = 15 * time.Second
	defaultZMQSendHWM            = 10000
)

// Topics published on the result socket.
const (
	topicJob         = "job"
	topicShareResult = "share"
	topicSolvedShare = "solved_share"
)

// buildTime can be overridden at build time with:
//
//	go build -ldflags="-X main.buildTime=2025-01-02T15:04:05Z"
var buildTime = ""
