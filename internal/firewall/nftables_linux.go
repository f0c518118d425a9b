//go:build linux

package firewall

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
	inputChainName  = "input"
	outputChainName = "output"
)

// NftablesBackend implements Backend using the Linux nftables subsystem via
// the google/nftables netlink library. It owns a single inet table with an
// input and an output base chain.
type NftablesBackend struct {
	tableName string
	logger    *slog.Logger
}

// NewNftablesBackend returns a new NftablesBackend managing tableName.
func NewNftablesBackend(tableName string, logger *slog.Logger) *NftablesBackend {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &NftablesBackend{
		tableName: tableName,
		logger:    logger.With("component", "firewall"),
	}
}

// ApplyRules replaces the table contents in a single netlink batch, so the
// kernel never observes a partially installed ruleset.
func (b *NftablesBackend) ApplyRules(rules []Rule) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: apply rules: %w", err)
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   b.tableName,
	})
	conn.FlushTable(table)

	input := conn.AddChain(&nftables.Chain{
		Name:     inputChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})
	output := conn.AddChain(&nftables.Chain{
		Name:     outputChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
	})

	for _, rule := range rules {
		exprs, err := buildRuleExprs(rule)
		if err != nil {
			return fmt.Errorf("firewall: nftables: apply rules: build expressions: %w", err)
		}
		chain := output
		if rule.Direction == DirectionIn {
			chain = input
		}
		conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: exprs,
		})
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("firewall: nftables: apply rules to table %q: %w", b.tableName, err)
	}

	b.logger.Debug("nftables rules applied",
		"table", b.tableName,
		"count", len(rules),
	)
	return nil
}

// Reset deletes the plexvpn table. It is idempotent: resetting when the
// table does not exist returns nil.
func (b *NftablesBackend) Reset() error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: reset: %w", err)
	}

	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyINet)
	if err != nil {
		return fmt.Errorf("firewall: nftables: reset: list tables: %w", err)
	}

	for _, t := range tables {
		if t.Name != b.tableName {
			continue
		}
		conn.DelTable(t)
		if err := conn.Flush(); err != nil {
			return fmt.Errorf("firewall: nftables: reset table %q: %w", b.tableName, err)
		}
		b.logger.Debug("nftables table deleted", "table", b.tableName)
		return nil
	}

	b.logger.Debug("nftables table not found, nothing to reset", "table", b.tableName)
	return nil
}

// buildRuleExprs converts a Rule into nftables match expressions and a verdict.
func buildRuleExprs(rule Rule) ([]expr.Any, error) {
	var exprs []expr.Any

	if rule.Interface != "" {
		key := expr.MetaKeyOIFNAME
		if rule.Direction == DirectionIn {
			key = expr.MetaKeyIIFNAME
		}
		exprs = append(exprs,
			&expr.Meta{Key: key, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceNameBytes(rule.Interface)},
		)
	}

	if rule.Tracked {
		exprs = append(exprs,
			&expr.Ct{Register: 1, SourceRegister: false, Key: expr.CtKeySTATE},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
				Xor:            binaryutil.NativeEndian.PutUint32(0),
			},
			&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: binaryutil.NativeEndian.PutUint32(0)},
		)
	}

	if rule.Remote.IsValid() {
		remote, err := buildRemoteMatchExprs(rule.Remote, rule.Direction)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", rule.Remote, err)
		}
		exprs = append(exprs, remote...)
	}

	if rule.Protocol != "" {
		proto, err := protocolNumber(rule.Protocol)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		)
	}

	if rule.Port > 0 {
		exprs = append(exprs,
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2, // TCP/UDP destination port offset
				Len:          2,
			},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.BigEndian.PutUint16(uint16(rule.Port))},
		)
	}

	if rule.Mark != 0 {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyMARK, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.NativeEndian.PutUint32(rule.Mark)},
		)
	}

	if rule.RootOnly {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeySKUID, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.NativeEndian.PutUint32(0)},
		)
	}

	exprs = append(exprs, &expr.Counter{})

	switch rule.Action {
	case "allow":
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case "deny":
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	default:
		return nil, fmt.Errorf("unsupported action %q", rule.Action)
	}

	return exprs, nil
}

// buildRemoteMatchExprs matches the remote address of a packet. In the inet
// family the network protocol is checked first so the payload offsets are
// read from the right header.
func buildRemoteMatchExprs(prefix netip.Prefix, dir Direction) ([]expr.Any, error) {
	prefix = prefix.Masked()
	addr := prefix.Addr()

	var (
		nfproto byte
		offset  uint32
		size    uint32
	)
	switch {
	case addr.Is4():
		nfproto, size = unix.NFPROTO_IPV4, 4
		offset = 16 // IPv4 destination
		if dir == DirectionIn {
			offset = 12 // IPv4 source
		}
	case addr.Is6():
		nfproto, size = unix.NFPROTO_IPV6, 16
		offset = 24 // IPv6 destination
		if dir == DirectionIn {
			offset = 8 // IPv6 source
		}
	default:
		return nil, fmt.Errorf("invalid address %s", addr)
	}

	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{nfproto}},
	}
	if prefix.Bits() == 0 {
		return exprs, nil
	}

	exprs = append(exprs, &expr.Payload{
		DestRegister: 1,
		Base:         expr.PayloadBaseNetworkHeader,
		Offset:       offset,
		Len:          size,
	})

	if prefix.Bits() == addr.BitLen() {
		return append(exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()}), nil
	}

	return append(exprs,
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            size,
			Mask:           prefixMask(prefix.Bits(), int(size)),
			Xor:            make([]byte, size),
		},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()},
	), nil
}

func prefixMask(bits, size int) []byte {
	mask := make([]byte, size)
	for i := 0; i < bits; i++ {
		mask[i/8] |= 0x80 >> (i % 8)
	}
	return mask
}

// protocolNumber maps a protocol string to its IP protocol number.
func protocolNumber(proto string) (byte, error) {
	switch proto {
	case "tcp":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	case "icmpv6":
		return unix.IPPROTO_ICMPV6, nil
	default:
		return 0, fmt.Errorf("unsupported protocol %q", proto)
	}
}

// ifaceNameBytes returns the interface name as a null-terminated byte slice
// for nftables expression matching.
func ifaceNameBytes(name string) []byte {
	buf := make([]byte, 16)
	copy(buf, name)
	return buf[:len(name)+1]
}
