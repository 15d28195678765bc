package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/metrics"
)

const (
	framePrefix = "data: "
	doneMarker  = "[DONE]"

	maxFrameSize = 1024 * 1024
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ReadStream consumes newline-delimited event frames and calls onDelta with
// each non-empty text delta. A "[DONE]" frame ends the read early; frames
// that fail to parse are skipped.
func ReadStream(r io.Reader, onDelta DeltaFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, framePrefix) {
			continue
		}

		data := strings.TrimSpace(line[len(framePrefix):])
		if data == doneMarker {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			metrics.DroppedFrames.Inc()
			logger.Debug("Skipping unparsable stream frame (%.80s): %v", data, err)
			continue
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}
