package wireguard

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The wireguard-go configuration protocol: newline separated key=value
// pairs with keys hex encoded.

func uapiDeviceConfig(cfg InterfaceConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%s\n", hex.EncodeToString(cfg.PrivateKey))
	fmt.Fprintf(&b, "listen_port=%d\n", cfg.ListenPort)
	fmt.Fprintf(&b, "fwmark=%d\n", cfg.FirewallMark)
	return b.String()
}

func uapiPeerConfig(cfg PeerConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "public_key=%s\n", hex.EncodeToString(cfg.PublicKey))
	if len(cfg.PSK) > 0 {
		fmt.Fprintf(&b, "preshared_key=%s\n", hex.EncodeToString(cfg.PSK))
	}
	if cfg.Endpoint.IsValid() {
		fmt.Fprintf(&b, "endpoint=%s\n", cfg.Endpoint)
	}
	fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", int(cfg.PersistentKeepalive/time.Second))
	b.WriteString("replace_allowed_ips=true\n")
	for _, prefix := range cfg.AllowedIPs {
		fmt.Fprintf(&b, "allowed_ip=%s\n", prefix.Masked())
	}
	return b.String()
}

func uapiRemovePeer(publicKey []byte) string {
	return fmt.Sprintf("public_key=%s\nremove=true\n", hex.EncodeToString(publicKey))
}

// parseUAPIPeerStats extracts per-peer counters from an IpcGet dump.
func parseUAPIPeerStats(dump string) ([]PeerStats, error) {
	var (
		stats    []PeerStats
		cur      *PeerStats
		sec, nse int64
	)
	flush := func() {
		if cur == nil {
			return
		}
		if sec != 0 || nse != 0 {
			cur.LastHandshake = time.Unix(sec, nse)
		}
		stats = append(stats, *cur)
		cur, sec, nse = nil, 0, 0
	}

	sc := bufio.NewScanner(strings.NewReader(dump))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		if key == "public_key" {
			flush()
			pub, err := hex.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("wireguard: parse uapi: public key: %w", err)
			}
			cur = &PeerStats{PublicKey: pub}
			continue
		}
		if cur == nil {
			continue
		}

		var err error
		switch key {
		case "last_handshake_time_sec":
			sec, err = strconv.ParseInt(value, 10, 64)
		case "last_handshake_time_nsec":
			nse, err = strconv.ParseInt(value, 10, 64)
		case "rx_bytes":
			cur.RxBytes, err = strconv.ParseInt(value, 10, 64)
		case "tx_bytes":
			cur.TxBytes, err = strconv.ParseInt(value, 10, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("wireguard: parse uapi: %s: %w", key, err)
		}
	}
	flush()
	return stats, sc.Err()
}
