package gossip

import (
	"github.com/klauspost/compress/zstd"
)

// envelope is the wire form of a gossip exchange: compressed carries
// whether payload was worth zstd-framing, matching
// original_source/layers/network.py's "(compressed_data, is_compressed)"
// tuple (there done with LZ4; clustercore uses zstd, already a
// transitive dependency of the teacher's container stack).
type envelope struct {
	Compressed bool   `json:"compressed"`
	Payload    []byte `json:"payload"`
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressPayload frames json with zstd only when compression is
// enabled, the payload clears the configured threshold, and doing so
// actually shrinks it.
func compressPayload(json []byte, enabled bool, threshold int) envelope {
	if !enabled || len(json) < threshold {
		return envelope{Compressed: false, Payload: json}
	}
	compressed := zstdEncoder.EncodeAll(json, make([]byte, 0, len(json)))
	if len(compressed) >= len(json) {
		return envelope{Compressed: false, Payload: json}
	}
	return envelope{Compressed: true, Payload: compressed}
}

func decompressPayload(e envelope) ([]byte, error) {
	if !e.Compressed {
		return e.Payload, nil
	}
	return zstdDecoder.DecodeAll(e.Payload, nil)
}
