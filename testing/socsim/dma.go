package socsim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clktmr/mxs/soc"
	"github.com/clktmr/mxs/soc/apbh"
	"github.com/clktmr/mxs/soc/cpu"
	"github.com/clktmr/mxs/soc/gpmi"
)

var errBus = errors.New("ahb error")

// Upper bound of CCWs per chain, catches chains linked in a loop.
const maxChain = 1024

func (s *SoC) setAPBH(reg, bits uint32) {
	s.regs[soc.APBHBase+reg] |= bits
}

// run executes the chain of channel ch starting at NXTCMDAR.
func (s *SoC) run(ch int) {
	if s.stall[ch] {
		s.log.WithField("channel", ch).Debug("channel stalled")
		return
	}
	log := s.log.WithField("channel", ch)
	sema := apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegSema)

	if s.failBus[ch] {
		s.failBus[ch] = false
		s.fail(ch, errBus)
		return
	}

	addr := cpu.Addr(s.regs[apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegNxtCmdAr)])
	for range maxChain {
		b, ok := s.mem.read(addr, apbh.CCWSize)
		if !ok {
			s.fail(ch, fmt.Errorf("ccw at %#08x: %w", addr, errBus))
			return
		}
		var ccw apbh.CCW
		ccw.Unmarshal(b)
		s.regs[apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegCurCmdAr)] = uint32(addr)
		s.regs[apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegCmd)] = uint32(ccw.Cmd)
		s.regs[apbh.ChannelRegister(soc.APBHBase, ch, apbh.RegBar)] = uint32(ccw.Buffer)
		log.Debug(ccw.String())

		if err := s.exec(&ccw); err != nil {
			s.fail(ch, err)
			return
		}

		if ccw.Cmd&apbh.CmdDecSem != 0 {
			phore := apbh.SemaPhore.Get(apbh.Sema(s.regs[sema]))
			if phore > 0 {
				phore--
			}
			s.regs[sema] = uint32(apbh.SemaPhore.Val(phore))
		}
		if ccw.Cmd&apbh.CmdIRQ != 0 {
			s.setAPBH(apbh.RegCtrl1, uint32(apbh.Ctrl1CmdCmpltIRQ.Bit(ch)))
		}
		if ccw.Cmd&apbh.CmdChain == 0 {
			return
		}
		if apbh.SemaPhore.Get(apbh.Sema(s.regs[sema])) == 0 {
			// hardware waits for the semaphore, the driver never does
			log.Warn("chain stopped by semaphore")
			return
		}
		addr = ccw.Next
	}
	s.fail(ch, errors.New("chain too long"))
}

func (s *SoC) fail(ch int, err error) {
	s.log.WithError(err).WithField("channel", ch).Debug("chain failed")
	s.setAPBH(apbh.RegCtrl2, uint32(apbh.Ctrl2ErrorIRQ.Bit(ch)|apbh.Ctrl2ErrorStatus.Bit(ch)))
}

// exec writes the CCW's PIO words to the GPMI and runs the resulting bus
// cycles.
func (s *SoC) exec(ccw *apbh.CCW) error {
	for i, w := range ccw.PIOWords() {
		s.regs[soc.GPMIBase+uint32(i)*gpmi.RegisterStride] = w
	}
	pio := len(ccw.PIOWords()) > 0
	n := ccw.XferCount()
	kind := ccw.Kind()

	if !pio && kind == apbh.CmdNoXfer {
		return nil
	}

	ctrl0 := gpmi.Ctrl0(s.regs[soc.GPMIBase+gpmi.RegCtrl0])
	cs := int(gpmi.Ctrl0CS.Get(ctrl0))
	mode := gpmi.Mode(gpmi.Ctrl0CommandMode.Get(ctrl0))
	address := gpmi.Address(gpmi.Ctrl0Address.Get(ctrl0))
	ecc := gpmi.ECCCtrl(s.regs[soc.GPMIBase+gpmi.RegECCCtrl])

	c, err := s.chip(cs)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"cs": cs, "mode": mode})

	if mode == gpmi.ModeWaitForReady {
		c.busy = 0
		return nil
	}
	if ecc&gpmi.ECCCtrlEnable != 0 {
		return s.execECC(c, cs, mode, gpmi.ECCCtrlCmd.Get(ecc))
	}
	if kind == apbh.CmdNoXfer {
		return nil
	}

	switch mode {
	case gpmi.ModeWrite:
		if kind != apbh.CmdRead {
			return fmt.Errorf("gpmi write with dma kind %d", kind)
		}
		p, ok := s.mem.read(ccw.Buffer, n)
		if !ok {
			return fmt.Errorf("buffer %#08x: %w", ccw.Buffer, errBus)
		}
		log.WithField("bytes", n).Debug("write")
		s.cycles(c, address, ctrl0&gpmi.Ctrl0AddressIncrement != 0, p)
	case gpmi.ModeRead:
		if kind != apbh.CmdWrite {
			return fmt.Errorf("gpmi read with dma kind %d", kind)
		}
		log.WithField("bytes", n).Debug("read")
		if !s.mem.write(ccw.Buffer, c.readData(n)) {
			return fmt.Errorf("buffer %#08x: %w", ccw.Buffer, errBus)
		}
	default:
		return fmt.Errorf("unsupported gpmi mode %d", mode)
	}
	return nil
}

// cycles puts p on the NAND bus as command, address or data cycles.
func (s *SoC) cycles(c *Chip, address gpmi.Address, increment bool, p []byte) {
	for _, b := range p {
		switch address {
		case gpmi.AddressCLE:
			c.command(b)
			if increment {
				address = gpmi.AddressALE
			}
		case gpmi.AddressALE:
			c.address(b)
		default:
			c.writeData([]byte{b})
		}
	}
}

// execECC runs a page transfer through the BCH engine.
func (s *SoC) execECC(c *Chip, cs int, mode gpmi.Mode, cmd uint32) error {
	l := s.bch.layout(cs)
	payloadAddr := cpu.Addr(s.regs[soc.GPMIBase+gpmi.RegPayload])
	auxAddr := cpu.Addr(s.regs[soc.GPMIBase+gpmi.RegAuxiliary])
	if l.chunks == 0 || l.raw == 0 {
		return errors.New("bch layout not programmed")
	}

	switch {
	case mode == gpmi.ModeWrite && cmd == gpmi.ECCEncode:
		payload, ok := s.mem.read(payloadAddr, l.payloadSize())
		if !ok {
			return fmt.Errorf("payload %#08x: %w", payloadAddr, errBus)
		}
		aux, ok := s.mem.read(auxAddr, l.meta)
		if !ok {
			return fmt.Errorf("aux %#08x: %w", auxAddr, errBus)
		}
		c.writeData(l.encode(payload, aux))
	case mode == gpmi.ModeRead && cmd == gpmi.ECCDecode:
		raw := c.readData(l.raw)
		var pristine []byte
		if c.valid() {
			pristine = c.pristine[c.row]
		}
		payload, aux := l.decode(raw, pristine)
		if !s.mem.write(payloadAddr, payload) || !s.mem.write(auxAddr, aux) {
			return fmt.Errorf("bch writeback: %w", errBus)
		}
	default:
		return fmt.Errorf("ecc command %d in gpmi mode %d", cmd, mode)
	}
	s.bch.complete()
	return nil
}
