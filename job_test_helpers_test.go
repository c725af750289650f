package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Unix(1700000000, 0)

// testPrePowHex builds a syntactically valid pre-pow with the given height and
// secondary scaling. salt varies the bytes in between so two pre-pows at one
// height differ.
func testPrePowHex(height uint64, scaling uint32, salt byte) string {
	raw := make([]byte, grinPrePowSize)
	binary.BigEndian.PutUint16(raw[0:2], 2)
	binary.BigEndian.PutUint64(raw[2:10], height)
	for i := 10; i < len(raw)-4; i++ {
		raw[i] = salt
	}
	binary.BigEndian.PutUint32(raw[len(raw)-4:], scaling)
	return hex.EncodeToString(raw)
}

func testTemplatePayload(height, difficulty uint64, salt byte) []byte {
	return []byte(fmt.Sprintf(`{"height":%d,"jobId":%d,"difficulty":%d,"prePow":"%s","created_at_ts":1700000000}`,
		height, height*10, difficulty, testPrePowHex(height, 1856, salt)))
}

func testGrinJob(t *testing.T, id, height, difficulty uint64) *GrinJob {
	t.Helper()
	job, err := newGrinJob(rawJobTemplate{
		Height:     height,
		Difficulty: difficulty,
		PrePow:     testPrePowHex(height, 1856, byte(id)),
	}, id, testNow)
	if err != nil {
		t.Fatalf("newGrinJob: %v", err)
	}
	return job
}

// testClock is a settable time source for repository, feed and publisher
// tests.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordedMessage struct {
	topic   string
	payload []byte
}

// recordingPublisher captures published messages and can be told to fail.
type recordingPublisher struct {
	messages []recordedMessage
	err      error
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, recordedMessage{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (p *recordingPublisher) topics() []string {
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.topic)
	}
	return out
}
