package engine

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is one block of ffmpeg -progress output.
type Status struct {
	Frame   int64
	FPS     float64
	Bitrate string
	Speed   string
	// OutTime is the media time encoded so far. It is only meaningful when
	// HasOutTime is set; ffmpeg reports N/A before the first packet.
	OutTime    time.Duration
	HasOutTime bool
	// End is set on the final block.
	End bool
}

// ParseProgress reads key=value lines from r and calls fn once per block,
// at each "progress=continue" or "progress=end" marker. It returns when r
// is exhausted.
func ParseProgress(r io.Reader, fn func(Status)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var block Status
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "progress":
			block.End = value == "end"
			fn(block)
			block = Status{}
		case "frame":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
				block.Frame = n
			}
		case "fps":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
				block.FPS = f
			}
		case "bitrate":
			if value != "N/A" {
				block.Bitrate = value
			}
		case "speed":
			if value != "N/A" {
				block.Speed = value
			}
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				block.OutTime = time.Duration(us) * time.Microsecond
				block.HasOutTime = true
			}
		case "out_time_ms":
			// Despite the name, ffmpeg reports microseconds here too.
			if !block.HasOutTime {
				if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
					block.OutTime = time.Duration(us) * time.Microsecond
					block.HasOutTime = true
				}
			}
		case "out_time":
			if !block.HasOutTime {
				if d, ok := ParseClock(value); ok {
					block.OutTime = d
					block.HasOutTime = true
				}
			}
		}
	}
	return scanner.Err()
}

// ParseClock parses [HH:]MM:SS[.fraction] into a duration.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" || strings.HasPrefix(s, "-") {
		return 0, false
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		// Only the seconds field may carry a fraction.
		if i < len(parts)-1 && strings.Contains(part, ".") {
			return 0, false
		}
		total = total*60 + v
	}
	return time.Duration(math.Round(total * float64(time.Second))), true
}
