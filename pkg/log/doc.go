/*
Package log provides structured logging for baseoverlay-csi using zerolog.

Call Init once at startup with the desired level and format, then use the
package-level helpers or Logger directly. WithComponent, WithVolumeID, and
WithBase each return a child logger carrying that one field on every
subsequent entry, which is how the lifecycle coordinator, the reaper and the
CSI gRPC server tag their output ("volume_id=vol-A", "base=vol-A",
"component=csiserver").
*/
package log
