package main

import (
	"errors"
	"io"
	"log"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skyline-rigging/flyer-controller/config"
	"github.com/skyline-rigging/flyer-controller/node"
)

func TestTransportWriterAdaptsToLEDWriter(t *testing.T) {
	Convey("Given a transportWriter wrapping a function", t, func() {
		var got []byte
		w := transportWriter(func(data []byte) error {
			got = data
			return nil
		})

		Convey("Write forwards its argument and return value through", func() {
			err := w.Write([]byte{1, 2, 3})
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []byte{1, 2, 3})
		})

		Convey("a returned error propagates", func() {
			boom := errors.New("boom")
			w := transportWriter(func([]byte) error { return boom })
			So(w.Write(nil), ShouldEqual, boom)
		})
	})
}

func TestBuildLEDModelsOneEntryPerNode(t *testing.T) {
	Convey("Given a config with two winches", t, func() {
		cfg := config.Default()
		cfg.Winches = []config.WinchParams{{}, {}}
		transport, err := node.NewTransport("127.0.0.1:0", "", nil, log.New(io.Discard, "", 0))
		So(err, ShouldBeNil)
		defer transport.Close()

		Convey("buildLEDModels returns one mapping for the flyer plus one per winch", func() {
			models := buildLEDModels(transport, cfg)
			So(len(models), ShouldEqual, 1+len(cfg.Winches))
		})
	})
}
