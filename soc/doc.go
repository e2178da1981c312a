// The soc package provides the hardware abstraction layer for the NAND
// subsystem of Freescale i.MX23/i.MX28 style SoCs.
//
// It implements low-level access to the APBH DMA controller, the GPMI command
// sequencer and the BCH error correction engine in its subpackages. All
// hardware capabilities are directly exposed and in general unsafe. Use the
// nand driver instead.
package soc
