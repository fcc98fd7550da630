// ABOUTME: Entry point for the playback engine daemon
// ABOUTME: Parses CLI flags, creates the engine session, and runs the control surfaces
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/whiteroom-audio/playback-go/internal/control"
	"github.com/whiteroom-audio/playback-go/internal/discovery"
	"github.com/whiteroom-audio/playback-go/internal/ui"
	"github.com/whiteroom-audio/playback-go/internal/version"
	"github.com/whiteroom-audio/playback-go/pkg/bridge"
)

var (
	port    = flag.Int("port", 9300, "Control server port")
	name    = flag.String("name", "", "Engine friendly name (default: hostname-playback)")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI  = flag.Bool("tui", false, "Run the monitor TUI")
	verFlag = flag.Bool("version", false, "Print version and exit")
)

// songList collects repeated -song flags.
type songList []string

func (s *songList) String() string     { return fmt.Sprint(*s) }
func (s *songList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var preload songList
	flag.Var(&preload, "song", "Song to load at startup (file path or tone:<freq>); repeatable")
	flag.Parse()

	if *verFlag {
		fmt.Println(version.String())
		return
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	engineName := *name
	if engineName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		engineName = fmt.Sprintf("%s-playback", hostname)
	}

	logrus.WithFields(logrus.Fields{
		"name":    engineName,
		"port":    *port,
		"version": version.String(),
	}).Info("Starting playback engine")

	handle, err := bridge.Create()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create engine session")
	}
	defer bridge.Destroy(handle)

	if err := bridge.AudioStart(handle); err != nil {
		logrus.WithError(err).Fatal("Failed to start audio device")
	}

	for _, descriptor := range preload {
		id, err := bridge.LoadSong(handle, descriptor)
		if err != nil {
			logrus.WithError(err).WithField("source", descriptor).
				Warn("Failed to load song, skipping")
			continue
		}
		if err := bridge.Play(handle, id); err != nil {
			logrus.WithError(err).WithField("instance", id).Warn("Failed to start song")
		}
	}

	var mdnsManager *discovery.Manager
	if !*noMDNS {
		mdnsManager = discovery.NewManager(discovery.Config{
			InstanceName: engineName,
			Port:         *port,
		})
		if err := mdnsManager.Advertise(); err != nil {
			logrus.WithError(err).Warn("Failed to start mDNS advertisement")
			mdnsManager = nil
		}
	}
	defer func() {
		if mdnsManager != nil {
			mdnsManager.Stop()
		}
	}()

	srv := control.New(control.Config{Port: *port, Name: engineName}, handle)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var monitor *ui.Monitor
	if *useTUI {
		monitor = ui.NewMonitor(handle, engineName, *port)
		go func() {
			if err := monitor.Start(); err != nil {
				logrus.WithError(err).Error("Monitor TUI failed")
			}
		}()
	}

	go func() {
		select {
		case sig := <-sigChan:
			logrus.WithField("signal", sig.String()).Info("Shutting down")
		case <-quitChan(monitor):
			logrus.Info("Monitor quit requested, shutting down")
		}
		if monitor != nil {
			monitor.Stop()
		}
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logrus.WithError(err).Fatal("Control server error")
	}
}

// quitChan returns the monitor's quit channel, or a never-ready channel
// when the TUI is disabled.
func quitChan(m *ui.Monitor) <-chan struct{} {
	if m == nil {
		return make(chan struct{})
	}
	return m.QuitChan()
}
