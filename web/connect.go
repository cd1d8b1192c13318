package web

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/skyline-rigging/flyer-controller/bus"
	"github.com/skyline-rigging/flyer-controller/config"
)

// Start launches the HTTP discovery server and the WebSocket server as
// background goroutines, writes the connection file, and prints the
// connect string to stdout — grounded on original_source/src/interface/
// web/mod.rs's start(). A fatal bind failure on either listener kills the
// process the same way the original's .expect() calls do.
func Start(b *bus.Bus, cfg *config.SharedFile, logger *log.Logger) {
	web := cfg.Snapshot().Web
	secretKey, err := makeRandomString()
	if err != nil {
		logger.Fatalf("web: generate secret key: %v", err)
	}

	portOverride := 0
	if v := os.Getenv("HTTP_URI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			portOverride = p
		}
	}
	httpURI := web.HTTPURI(secretKey, portOverride)
	connectString := makeConnectString(httpURI)

	go func() {
		if err := startHTTPServer(web); err != nil {
			logger.Fatalf("web: http server: %v", err)
		}
	}()
	go func() {
		if err := startWebSocketServer(web.WSAddr, secretKey, b, cfg, logger); err != nil {
			logger.Fatalf("web: websocket server: %v", err)
		}
	}()

	if err := storeConnectString(connectString, web.ConnectionFilePath); err != nil {
		logger.Printf("web: can't write connection file: %v", err)
	}
	fmt.Printf("\n\n\n%s\n\n", connectString)
}

// makeQRCode renders url as ASCII-art QR code text, grounded on mod.rs's
// qrcode::QrCode::render::<char>().quiet_zone(true).
func makeQRCode(url string) (string, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("web: build qr code: %w", err)
	}
	return qr.ToString(false), nil
}

func makeConnectString(url string) string {
	qr, err := makeQRCode(url)
	if err != nil {
		qr = fmt.Sprintf("(qr code unavailable: %v)", err)
	}
	return fmt.Sprintf("%s\n%s\n", url, qr)
}

// storeConnectString writes the connect string with CRLF line endings —
// mod.rs's store_connect_string replaces "\n" with "\r\n" so the file
// displays correctly on Windows terminals/editors.
func storeConnectString(s, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.ReplaceAll(s, "\n", "\r\n"))
	return err
}
