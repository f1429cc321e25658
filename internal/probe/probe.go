// Package probe reports the elementary streams carried by an MPEG-TS segment.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astits"
)

// streamTypes names the PMT stream types commonly found in HLS segments.
var streamTypes = map[uint8]string{
	0x01: "MPEG-1-Video",
	0x02: "MPEG-2-Video",
	0x03: "MPEG-1-Audio",
	0x04: "MPEG-2-Audio",
	0x0f: "AAC-Audio",
	0x15: "ID3-Metadata",
	0x1b: "H.264-Video",
	0x24: "H.265-Video",
	0x81: "AC-3-Audio",
	0x87: "Enhanced-AC-3-Audio",
	0xdb: "H.264-Video (SAMPLE-AES)",
	0xcf: "AAC-Audio (SAMPLE-AES)",
	0xc1: "AC-3-Audio (SAMPLE-AES)",
	0xc2: "Enhanced-AC-3-Audio (SAMPLE-AES)",
}

// Stream is one elementary stream listed in a program map table.
type Stream struct {
	PID  uint16
	Type uint8
	Name string
}

// Info describes a transport stream file.
type Info struct {
	// ProgramNumber of the first program map table
	ProgramNumber uint16

	// PCRPID is the PID carrying the program clock reference
	PCRPID uint16

	Streams []Stream

	// PESPackets counts the PES payloads demuxed from the file
	PESPackets int
}

// StreamName returns a readable name for a PMT stream type.
func StreamName(t uint8) string {
	if name, ok := streamTypes[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", t)
}

// Describe demuxes the file at path and reports its program layout.
func Describe(ctx context.Context, path string) (Info, error) {
	var info Info

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()

	foundPMT := false
	dmx := astits.NewDemuxer(ctx, f)
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return info, fmt.Errorf("failed to demux %s: %w", path, err)
		}

		if d.PES != nil {
			info.PESPackets++
		}

		if d.PMT != nil && !foundPMT {
			foundPMT = true
			info.ProgramNumber = d.PMT.ProgramNumber
			info.PCRPID = d.PMT.PCRPID
			for _, es := range d.PMT.ElementaryStreams {
				t := uint8(es.StreamType)
				info.Streams = append(info.Streams, Stream{
					PID:  es.ElementaryPID,
					Type: t,
					Name: StreamName(t),
				})
			}
		}
	}

	if !foundPMT {
		return info, fmt.Errorf("%s: no program map table found", path)
	}
	return info, nil
}
