package agent

import (
	"context"

	"github.com/danmuck/fibctl/internal/protocol"
)

// PortStat is the link state of one switch port.
type PortStat struct {
	ID        int32 `json:"id"`
	Connected bool  `json:"connected"`
	OperState int32 `json:"oper_state"`
}

// PortStats returns every port the agent reports, in wire order.
func (c *Client) PortStats(ctx context.Context) ([]PortStat, error) {
	var stats []PortStat
	result := protocol.StructReaderFunc(func(p protocol.Protocol) error {
		_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
			if f.ID != fieldSuccess || f.Type != protocol.Map {
				return false, nil
			}
			s, err := readPortMap(p)
			stats = s
			return true, err
		})
		return err
	})
	if err := c.do(ctx, MethodGetAllPortStats, nil, result); err != nil {
		return nil, err
	}
	return stats, nil
}

// readPortMap decodes map<i32, PortInfo>. A map of any other shape is skipped.
func readPortMap(p protocol.Protocol) ([]PortStat, error) {
	h, err := p.ReadMapBegin()
	if err != nil {
		return nil, err
	}
	if h.KeyType != protocol.I32 || h.ValueType != protocol.Struct {
		for i := 0; i < h.Size; i++ {
			if err := p.Skip(h.KeyType); err != nil {
				return nil, err
			}
			if err := p.Skip(h.ValueType); err != nil {
				return nil, err
			}
		}
		return nil, p.ReadMapEnd()
	}
	stats := make([]PortStat, 0, protocol.CapHint(h.Size))
	for i := 0; i < h.Size; i++ {
		key, err := p.ReadI32()
		if err != nil {
			return nil, err
		}
		stat, err := readPortInfo(p, key)
		if err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, p.ReadMapEnd()
}

func readPortInfo(p protocol.Protocol, key int32) (PortStat, error) {
	stat := PortStat{ID: key}
	_, err := protocol.ReadStruct(p, func(f protocol.FieldHeader) (bool, error) {
		if f.ID != portOperState || f.Type != protocol.I32 {
			return false, nil
		}
		v, err := p.ReadI32()
		stat.OperState = v
		stat.Connected = v == operStateUp
		return true, err
	})
	return stat, err
}
