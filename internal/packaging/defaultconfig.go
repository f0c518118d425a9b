package packaging

import (
	"fmt"
	"strings"
)

// GenerateDefaultConfig produces a default config.yaml for plexvpn. Without
// a peer endpoint the peer section is written as a commented placeholder.
func GenerateDefaultConfig(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, `# plexvpn configuration
# See documentation for all available options.

log_level: info
data_dir: %s

control_api:
  socketpath: %s/control.sock

`, cfg.DataDir, cfg.RunDir)

	if cfg.Peer.Endpoint == "" {
		b.WriteString(`# peer:
#   endpoints:
#     - 198.51.100.1:51820
#   public_key: <base64 server public key>
#   addresses:
#     - 10.64.0.2/32
#   dns_servers:
#     - 10.64.0.1
`)
		return b.String()
	}

	fmt.Fprintf(&b, "peer:\n  endpoints:\n    - %s\n  public_key: %s\n", cfg.Peer.Endpoint, cfg.Peer.PublicKey)
	if cfg.Peer.Address != "" {
		fmt.Fprintf(&b, "  addresses:\n    - %s\n", cfg.Peer.Address)
	}
	if cfg.Peer.DNS != "" {
		fmt.Fprintf(&b, "  dns_servers:\n    - %s\n", cfg.Peer.DNS)
	}
	return b.String()
}
