// Package sysstat provides the local-host sources: battery (upower), wifi
// (nmcli), bluetooth devices (bluetoothctl), network speed and system
// metrics (gopsutil). Every CLI parser returns shell.ErrUnparseable on
// output it does not recognise.
package sysstat
