// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rawstorage implements the filesystem-backed RawStorageProvider
// capability: persisted batch files using a length-delimited envelope,
// under runs/{runId}/raw_data(_dlq)/.
package rawstorage

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

// writeEnvelope writes each record preceded by a 4-byte big-endian length,
// enabling streaming parse without a central index.
func writeEnvelope(w io.Writer, records [][]byte) error {
	bw := bufio.NewWriter(w)
	var lenBuf [4]byte
	for _, rec := range records {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return perr.Wrap(perr.TransientIO, "rawstorage: write length prefix", err)
		}
		if _, err := bw.Write(rec); err != nil {
			return perr.Wrap(perr.TransientIO, "rawstorage: write record", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return perr.Wrap(perr.TransientIO, "rawstorage: flush", err)
	}
	return nil
}

// readEnvelope parses a length-delimited stream back into records. Used by
// tests and by operational tooling reading a raw_data file back.
func readEnvelope(r io.Reader) ([][]byte, error) {
	br := bufio.NewReader(r)
	var records [][]byte
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return nil, perr.Wrap(perr.TransientIO, "rawstorage: read length prefix", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		rec := make([]byte, n)
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, perr.Wrap(perr.TransientIO, "rawstorage: read record", err)
		}
		records = append(records, rec)
	}
}
