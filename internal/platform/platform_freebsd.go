//go:build freebsd

// Package platform provides platform-specific process control constants.
package platform

// CloneSupported reports whether children can be started with clone flags.
const CloneSupported = false

// GroupKillZombieEPERM reports whether kill(-pgid) fails with EPERM when every
// member of the group is a zombie.
const GroupKillZombieEPERM = true

// KillAllIncludesCaller reports whether kill(-1, sig) also signals the caller.
const KillAllIncludesCaller = false

// CloneVM is the clone(2) flag that shares the parent's address space.
const CloneVM = 0x00000100
