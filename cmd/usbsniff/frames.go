package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/usbsniff/internal/recorder"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// eachFrame calls fn for every frame stored at path. A directory is read as
// a recorder log; a file as a frame stream, optionally mux wrapped.
func eachFrame(path string, mux bool, limits transport.Limits, fn func(transport.Frame) error) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		rp, err := recorder.NewReplayer(path)
		if err != nil {
			return err
		}
		defer rp.Close()
		return rp.Each(func(_ recorder.IndexEntry, f transport.Frame) error {
			return fn(f)
		})
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	r := bufio.NewReader(file)
	if !mux {
		return transport.DecodeFrames(r, limits, fn)
	}
	for {
		hdr, body, err := transport.ReadMux(r, limits)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.StreamID != transport.StreamCapture {
			continue
		}
		f, err := transport.ReadFrame(bytes.NewReader(body), limits)
		if err != nil {
			return fmt.Errorf("mux packet: %w", err)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}
