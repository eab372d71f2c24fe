package sendflow

import (
	"hash/maphash"

	"github.com/puzpuzpuz/xsync/v2"
	"github.com/tonkeeper/tongo/ton"

	"github.com/arnac-io/tonsend/pkg/core"
)

// MemoryPreferences keeps relay preferences in memory.
type MemoryPreferences struct {
	battery *xsync.MapOf[core.BatteryTransaction, bool]
	// disabled lists accounts that turned the battery off.
	disabled *xsync.MapOf[ton.AccountID, struct{}]
	gasless  *xsync.MapOf[bool, bool]
}

func hashAccountID(seed maphash.Seed, a ton.AccountID) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.Write(a.Address[:])
	h.WriteByte(byte(a.Workchain))
	return h.Sum64()
}

func hashCategory(seed maphash.Seed, c core.BatteryTransaction) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteByte(byte(c))
	return h.Sum64()
}

func hashBool(seed maphash.Seed, b bool) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	if b {
		h.WriteByte(1)
	} else {
		h.WriteByte(0)
	}
	return h.Sum64()
}

// NewMemoryPreferences enables the battery for the given categories.
func NewMemoryPreferences(battery ...core.BatteryTransaction) *MemoryPreferences {
	p := &MemoryPreferences{
		battery:  xsync.NewTypedMapOf[core.BatteryTransaction, bool](hashCategory),
		disabled: xsync.NewTypedMapOf[ton.AccountID, struct{}](hashAccountID),
		gasless:  xsync.NewTypedMapOf[bool, bool](hashBool),
	}
	for _, category := range battery {
		p.battery.Store(category, true)
	}
	return p
}

func (p *MemoryPreferences) BatteryEnabled(account ton.AccountID, category core.BatteryTransaction) bool {
	enabled, _ := p.battery.Load(category)
	if !enabled {
		return false
	}
	_, disabled := p.disabled.Load(account)
	return !disabled
}

// DisableBattery turns the battery off for one account.
func (p *MemoryPreferences) DisableBattery(account ton.AccountID) {
	p.disabled.Store(account, struct{}{})
}

func (p *MemoryPreferences) PreferGasless(testnet bool) bool {
	prefer, _ := p.gasless.Load(testnet)
	return prefer
}

func (p *MemoryPreferences) SetPreferGasless(testnet bool, prefer bool) {
	p.gasless.Store(testnet, prefer)
}
