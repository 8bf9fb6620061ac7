package xgrid

import (
	"github.com/golang/glog"
)

// UpdateState is the state of firmware propagation.
type UpdateState int

// Update states.
const (
	StateInit UpdateState = iota
	StateIdle
	StatePingBroadcast
	StateCheckVersions
	StateFwPush
	StateFwRx
)

var updateStateNames = [...]string{
	StateInit:          "init",
	StateIdle:          "idle",
	StatePingBroadcast: "ping",
	StateCheckVersions: "check",
	StateFwPush:        "push",
	StateFwRx:          "pull",
}

func (s UpdateState) String() string {
	if s >= 0 && int(s) < len(updateStateNames) {
		return updateStateNames[s]
	}
	return "unknown"
}

type updater struct {
	state UpdateState
	// delay counts ticks down to the next action.
	delay int
	// timeout counts ticks down to abandoning a pull.
	timeout int

	// push side, offset is in bytes
	targets LinkMask
	offset  int
	// an interrupted push continues from here if the same targets are
	// still behind
	resumeTargets LinkMask
	resumeOffset  int

	// pull side
	source        LinkID
	incomingCRC   uint16
	incomingBuild uint32
}

func (u *updater) init(cfg *Config) {
	*u = updater{
		state:  StateInit,
		delay:  cfg.Timing.Initial + int(cfg.ID&cfg.Timing.InitialJitter),
		source: NoLink,
	}
}

func (e *Engine) advanceUpdate() {
	u := &e.update
	t := &e.cfg.Timing
	if u.state == StateFwRx {
		if u.timeout > 0 {
			u.timeout--
		}
		if u.timeout == 0 {
			glog.Warningf("pull of build %d from link %d timed out", u.incomingBuild, u.source)
			e.leavePull()
		}
		return
	}
	if u.delay > 0 {
		if u.delay--; u.delay > 0 {
			return
		}
	}
	switch u.state {
	case StateInit:
		if err := e.sendNew(TypeFlushDedup, nil, AllLinks); err != nil {
			glog.Warningf("flush broadcast: %v", err)
		}
		u.state, u.delay = StateIdle, t.PostFlush
	case StateIdle:
		if err := e.sendNew(TypePingRequest, nil, AllLinks); err != nil {
			glog.V(1).Infof("ping broadcast: %v", err)
			u.delay = 1
			return
		}
		u.state, u.delay = StatePingBroadcast, t.PingWait
	case StatePingBroadcast:
		u.state = StateCheckVersions
		e.checkVersions()
	case StateFwPush:
		e.pushBlock()
	}
}

// checkVersions starts pushing to neighbors running older builds. Nothing
// is pushed while any neighbor runs a newer build, that neighbor will
// update this node first.
func (e *Engine) checkVersions() {
	u := &e.update
	t := &e.cfg.Timing
	u.state, u.delay = StateIdle, t.CheckInterval
	if e.flash == nil {
		return
	}
	var targets LinkMask
	for _, l := range e.links {
		switch {
		case l.build > e.build:
			glog.V(1).Infof("link %d runs newer build %d", l.id, l.build)
			return
		case l.build > 0 && l.build < e.build:
			targets |= MaskOf(l.id)
		}
	}
	if targets == 0 {
		return
	}
	cmd := StartUpdate(e.crc, e.build)
	if err := e.sendNew(TypeMaintenance, cmd.EncodeTo(e.scratch), targets); err != nil {
		glog.Warningf("start update: %v", err)
		return
	}
	u.offset = 0
	if u.resumeTargets == targets {
		u.offset = u.resumeOffset
	}
	u.resumeTargets, u.resumeOffset = 0, 0
	u.targets = targets
	u.state, u.delay = StateFwPush, t.BlockInterval
	glog.Infof("push build %d to links %016b from offset %d", e.build, targets, u.offset)
}

func (e *Engine) pushBlock() {
	u := &e.update
	t := &e.cfg.Timing
	page, size := e.cfg.PageSize, e.flash.Size()
	if u.offset >= size {
		cmd := Maintenance{Cmd: CmdFinishUpdate, Magic: UpdateMagic}
		if err := e.sendNew(TypeMaintenance, cmd.EncodeTo(e.scratch), u.targets); err != nil {
			u.delay = 1
			return
		}
		// targets report again once they run the new image
		for _, l := range e.links {
			if u.targets.Has(l.id) {
				l.build, l.crc = 0, 0
			}
		}
		glog.Infof("push build %d to links %016b done", e.build, u.targets)
		u.targets, u.offset = 0, 0
		u.state, u.delay = StateIdle, t.PostFinish
		return
	}
	data := e.scratch[2 : 2+page]
	for i := range data {
		if addr := u.offset + i; addr < size {
			data[i] = e.flash.ImageByte(addr)
		} else {
			data[i] = 0xff
		}
	}
	blk := FirmwareBlock{Offset: uint16(u.offset / page), Data: data}
	if err := e.sendNew(TypeFirmwareBlock, blk.EncodeTo(e.scratch), u.targets); err != nil {
		// same block next tick
		u.delay = 1
		return
	}
	u.offset += page
	u.delay = t.BlockInterval
	e.stats.BlocksSent++
}

func (e *Engine) handleMaintenance(pkt *Packet) {
	m, err := DecodeMaintenance(pkt.Payload)
	if err != nil {
		e.stats.Malformed++
		return
	}
	if !m.Authentic() {
		glog.Warningf("maintenance %d from %04x: %v %08x", m.Cmd, pkt.SourceID, ErrBadMagic, m.Magic)
		return
	}
	u := &e.update
	switch m.Cmd {
	case CmdReset:
		glog.Infof("reset requested by %04x", pkt.SourceID)
		if e.flash != nil {
			e.flash.Reset()
		}
	case CmdStartUpdate:
		if u.state == StateFwRx || m.Build <= e.build || e.flash == nil {
			return
		}
		if u.state == StateFwPush {
			u.resumeTargets, u.resumeOffset = u.targets, u.offset
			u.targets, u.offset = 0, 0
		}
		glog.Infof("pull build %d from link %d", m.Build, pkt.RxLink)
		u.state = StateFwRx
		u.source = pkt.RxLink
		u.incomingCRC, u.incomingBuild = m.CRC, m.Build
		u.timeout, u.delay = e.cfg.Timing.PullTimeout, 0
	case CmdFinishUpdate:
		if u.state != StateFwRx || pkt.RxLink != u.source {
			return
		}
		if crc := e.flash.CRC16(RegionStaging); crc != u.incomingCRC {
			e.stats.CRCFailures++
			glog.Errorf("pulled build %d: crc %04x, expect %04x", u.incomingBuild, crc, u.incomingCRC)
		} else if err := e.flash.InstallAndReset(); err != nil {
			glog.Errorf("install build %d: %v", u.incomingBuild, err)
		} else {
			e.build, e.crc = u.incomingBuild, u.incomingCRC
			e.stats.Installs++
			glog.Infof("installed build %d", e.build)
		}
		e.leavePull()
	case CmdAbortUpdate:
		if u.state == StateFwRx && pkt.RxLink == u.source {
			glog.Infof("pull of build %d aborted", u.incomingBuild)
			e.leavePull()
		}
	}
}

func (e *Engine) handleFirmwareBlock(pkt *Packet) {
	u := &e.update
	if u.state != StateFwRx || pkt.RxLink != u.source {
		return
	}
	blk, err := DecodeFirmwareBlock(pkt.Payload, e.cfg.PageSize)
	if err != nil {
		e.stats.Malformed++
		return
	}
	addr := int(blk.Offset) * e.cfg.PageSize
	if addr >= e.flash.Size() {
		glog.Warningf("block %d: %v", blk.Offset, ErrOutOfImage)
		return
	}
	if err := e.flash.WritePage(addr, blk.Data); err != nil {
		glog.Errorf("write block %d: %v", blk.Offset, err)
		return
	}
	u.timeout = e.cfg.Timing.PullTimeout
	e.stats.BlocksWritten++
}

func (e *Engine) leavePull() {
	u := &e.update
	u.state, u.delay = StateIdle, e.cfg.Timing.PostInstall
	u.timeout, u.source = 0, NoLink
}
