package daemon

import (
	"context"

	"github.com/plexsphere/plexvpn/internal/metrics"
	"github.com/plexsphere/plexvpn/internal/wireguard"
)

type peerStatsSource interface {
	Stats() ([]wireguard.PeerStats, error)
}

// wireguardStats reads tunnel counters from the WireGuard device.
type wireguardStats struct {
	device peerStatsSource
}

var _ metrics.TunnelStatsReader = wireguardStats{}

func (w wireguardStats) ReadTunnelStats(_ context.Context) ([]metrics.TunnelStats, error) {
	peers, err := w.device.Stats()
	if err != nil {
		return nil, err
	}
	out := make([]metrics.TunnelStats, 0, len(peers))
	for _, p := range peers {
		out = append(out, metrics.TunnelStats{
			PublicKey:     wireguard.EncodeKey(p.PublicKey),
			LastHandshake: p.LastHandshake,
			RxBytes:       uint64(max(p.RxBytes, 0)),
			TxBytes:       uint64(max(p.TxBytes, 0)),
		})
	}
	return out, nil
}
