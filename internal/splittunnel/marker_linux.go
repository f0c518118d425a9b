//go:build linux

package splittunnel

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

const (
	markChainName       = "mark"
	masqueradeChainName = "masquerade"
)

// NftablesMarker implements Marker with its own inet table. A route chain
// on output sets the exclusion mark on sockets of the exclusion cgroup, so
// the kernel reroutes their packets; a nat chain masquerades marked
// packets that still carry a tunnel source address.
type NftablesMarker struct {
	tableName string
	logger    *slog.Logger
}

// NewNftablesMarker returns a NftablesMarker managing tableName.
func NewNftablesMarker(tableName string, logger *slog.Logger) *NftablesMarker {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &NftablesMarker{
		tableName: tableName,
		logger:    logger.With("component", "splittunnel"),
	}
}

// Apply replaces the table contents in a single netlink batch.
func (m *NftablesMarker) Apply(rule MarkRule) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("splittunnel: nftables: apply: %w", err)
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   m.tableName,
	})
	conn.FlushTable(table)

	mark := conn.AddChain(&nftables.Chain{
		Name:     markChainName,
		Table:    table,
		Type:     nftables.ChainTypeRoute,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityMangle,
	})
	masq := conn.AddChain(&nftables.Chain{
		Name:     masqueradeChainName,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	})

	conn.AddRule(&nftables.Rule{Table: table, Chain: mark, Exprs: markExprs(rule)})
	for _, exprs := range masqueradeExprs(rule) {
		conn.AddRule(&nftables.Rule{Table: table, Chain: masq, Exprs: exprs})
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("splittunnel: nftables: apply to table %q: %w", m.tableName, err)
	}
	m.logger.Debug("exclusion marking applied", "table", m.tableName, "cgroup", rule.Cgroup.ID, "mark", rule.Mark)
	return nil
}

// Remove deletes the table. Removing a missing table returns nil.
func (m *NftablesMarker) Remove() error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("splittunnel: nftables: remove: %w", err)
	}
	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyINet)
	if err != nil {
		return fmt.Errorf("splittunnel: nftables: remove: list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name != m.tableName {
			continue
		}
		conn.DelTable(t)
		if err := conn.Flush(); err != nil {
			return fmt.Errorf("splittunnel: nftables: remove table %q: %w", m.tableName, err)
		}
		m.logger.Debug("exclusion marking removed", "table", m.tableName)
		return nil
	}
	return nil
}

// markExprs is "socket cgroupv2 level L <id> meta mark set <mark>".
func markExprs(rule MarkRule) []expr.Any {
	return []expr.Any{
		&expr.Socket{Key: expr.SocketKeyCgroupv2, Level: rule.Cgroup.Level, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.NativeEndian.PutUint64(rule.Cgroup.ID)},
		&expr.Immediate{Register: 1, Data: binaryutil.NativeEndian.PutUint32(rule.Mark)},
		&expr.Meta{Key: expr.MetaKeyMARK, SourceRegister: true, Register: 1},
		&expr.Counter{},
	}
}

// masqueradeExprs returns one "meta mark <mark> ip saddr <tunnel> masquerade"
// rule per tunnel address.
func masqueradeExprs(rule MarkRule) [][]expr.Any {
	if rule.Addresses == nil {
		return nil
	}
	var out [][]expr.Any
	for _, addr := range []netip.Addr{rule.Addresses.IPv4, rule.Addresses.IPv6} {
		if !addr.IsValid() {
			continue
		}
		nfproto, offset := byte(unix.NFPROTO_IPV4), uint32(12) // IPv4 source
		if addr.Is6() {
			nfproto, offset = unix.NFPROTO_IPV6, 8 // IPv6 source
		}
		out = append(out, []expr.Any{
			&expr.Meta{Key: expr.MetaKeyMARK, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.NativeEndian.PutUint32(rule.Mark)},
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{nfproto}},
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       offset,
				Len:          uint32(addr.BitLen() / 8),
			},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()},
			&expr.Counter{},
			&expr.Masq{},
		})
	}
	return out
}
