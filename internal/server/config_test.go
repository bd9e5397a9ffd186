package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	Convey("a missing file yields defaults", t, func() {
		cfg := LoadConfig(filepath.Join(dir, "nope.yaml"))
		So(cfg.Instrument.Model, ShouldEqual, "Keysight33512")
		So(cfg.Instrument.Transport.Type, ShouldEqual, "tcp")
		So(cfg.Server.ListenAddr, ShouldEqual, ":8080")
	})

	Convey("yaml values override defaults field by field", t, func() {
		path := filepath.Join(dir, "fgen.yaml")
		yaml := `
instrument:
  model: AFG31000
  transport:
    type: serial
    port_path: /dev/ttyACM3
  poll_interval_s: 0.5
server:
  listen_addr: ":9000"
`
		So(os.WriteFile(path, []byte(yaml), 0644), ShouldBeNil)

		cfg := LoadConfig(path)
		So(cfg.Instrument.Model, ShouldEqual, "AFG31000")
		So(cfg.Instrument.Transport.Type, ShouldEqual, "serial")
		So(cfg.Instrument.Transport.PortPath, ShouldEqual, "/dev/ttyACM3")
		// untouched fields keep their defaults
		So(cfg.Instrument.Transport.BaudRate, ShouldEqual, 115200)
		So(cfg.Server.ListenAddr, ShouldEqual, ":9000")

		dc := cfg.DeviceConfig()
		So(dc.PollInterval, ShouldEqual, 500*time.Millisecond)
		So(dc.ConnectTimeout, ShouldEqual, 10*time.Second)
	})

	Convey("environment variables override the file", t, func() {
		t.Setenv("FGEN_MODEL", "Keysight33511")
		t.Setenv("FGEN_ADDR", "10.0.0.9:5025")
		t.Setenv("LISTEN_ADDR", ":7070")

		cfg := LoadConfig(filepath.Join(dir, "nope.yaml"))
		So(cfg.Instrument.Model, ShouldEqual, "Keysight33511")
		So(cfg.Instrument.Transport.Addr, ShouldEqual, "10.0.0.9:5025")
		So(cfg.Server.ListenAddr, ShouldEqual, ":7070")
	})
}

func TestConfigSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fgen.yaml")

	Convey("Save writes yaml that LoadConfig reads back", t, func() {
		cfg := DefaultConfig()
		cfg.path = path
		cfg.Instrument.Model = "Keysight3500"
		cfg.Journal.Enabled = true
		So(cfg.Save(), ShouldBeNil)

		again := LoadConfig(path)
		So(again.Instrument.Model, ShouldEqual, "Keysight3500")
		So(again.Journal.Enabled, ShouldBeTrue)
	})
}

func TestUpdateFromJSON(t *testing.T) {
	Convey("partial updates merge instead of replacing", t, func() {
		cfg := DefaultConfig()
		err := cfg.UpdateFromJSON([]byte(`{"instrument":{"model":"AFG31000"}}`))
		So(err, ShouldBeNil)
		So(cfg.Instrument.Model, ShouldEqual, "AFG31000")
		// siblings survive the patch
		So(cfg.Instrument.Transport.Type, ShouldEqual, "tcp")
		So(cfg.Instrument.PollIntervalS, ShouldEqual, 5.0)
	})

	Convey("nested patches reach leaf fields", t, func() {
		cfg := DefaultConfig()
		err := cfg.UpdateFromJSON([]byte(`{"instrument":{"transport":{"addr":"gen1.lab:5025"}}}`))
		So(err, ShouldBeNil)
		So(cfg.Instrument.Transport.Addr, ShouldEqual, "gen1.lab:5025")
		So(cfg.Instrument.Transport.Type, ShouldEqual, "tcp")
	})

	Convey("malformed patches are rejected", t, func() {
		cfg := DefaultConfig()
		So(cfg.UpdateFromJSON([]byte(`{broken`)), ShouldNotBeNil)
	})
}
