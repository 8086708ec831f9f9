package native

import (
	"minic/pkg/device"
)

// Board returns the firmware's native table bound to dev. The order is part
// of the compiled program's ABI; append new entries, never reorder.
func Board(dev device.Device) *Registry {
	r, err := NewRegistry(BoardEntries(dev)...)
	if err != nil {
		// The table below is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

func BoardEntries(dev device.Device) []Entry {
	return []Entry{
		{"gpio_mode", 2, func(a *Args) int32 {
			dev.PinMode(a.Int(0), a.Int(1))
			return 0
		}},
		{"gpio_write", 2, func(a *Args) int32 {
			dev.DigitalWrite(a.Int(0), a.Int(1))
			return 0
		}},
		{"gpio_read", 1, func(a *Args) int32 {
			return dev.DigitalRead(a.Int(0))
		}},
		{"sleep", 1, func(a *Args) int32 {
			dev.Sleep(a.Int(0))
			return 0
		}},
		{"millis", 0, func(a *Args) int32 {
			return dev.Millis()
		}},
		{"adc_init", 1, func(a *Args) int32 {
			dev.PinMode(a.Int(0), device.Input)
			return 0
		}},
		{"adc_read", 1, func(a *Args) int32 {
			return dev.AnalogRead(a.Int(0))
		}},
		{"pwm_attach", 1, func(a *Args) int32 {
			dev.PinMode(a.Int(0), device.Output)
			dev.AnalogWrite(a.Int(0), 0)
			return 0
		}},
		{"pwm_write", 2, func(a *Args) int32 {
			dev.AnalogWrite(a.Int(0), a.Int(1))
			return 0
		}},
		{"uart_begin", 1, func(a *Args) int32 {
			dev.UARTBegin(a.Int(0))
			return 0
		}},
		{"uart_write", 1, func(a *Args) int32 {
			return dev.UARTWrite(byte(a.Int(0)))
		}},
		{"uart_read", 0, func(a *Args) int32 {
			return dev.UARTRead()
		}},
		// SDA and SCL are fixed by the board mapping; the clock is the
		// third word, which reads as 0 unless the script passes it.
		{"i2c_begin", 2, func(a *Args) int32 {
			dev.I2CBegin(a.Int(2))
			return 0
		}},
		{"i2c_write", 3, func(a *Args) int32 {
			return dev.I2CWrite(a.Int(0), a.Int(1), a.Int(2))
		}},
		{"i2c_read", 2, func(a *Args) int32 {
			return dev.I2CRead(a.Int(0), a.Int(1))
		}},
		{"spi_begin", 0, func(a *Args) int32 {
			dev.SPIBegin()
			return 0
		}},
		{"spi_xfer", 1, func(a *Args) int32 {
			return dev.SPITransfer(byte(a.Int(0)))
		}},
		{"fs_write", 2, func(a *Args) int32 {
			path, ok := a.String(0)
			if !ok {
				return -1
			}
			data, _ := a.String(1)
			if err := dev.WriteFile(path, data); err != nil {
				log.Debugf("fs_write %s: %s", path, err)
				return -1
			}
			return 0
		}},
		{"fs_read", 1, func(a *Args) int32 {
			path, ok := a.String(0)
			if !ok {
				return -1
			}
			data, err := dev.ReadFile(path)
			if err != nil {
				log.Debugf("fs_read %s: %s", path, err)
				return -1
			}
			return int32(len(data))
		}},
		{"yield", 0, func(a *Args) int32 {
			dev.Yield()
			return 0
		}},
	}
}
