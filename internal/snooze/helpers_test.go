package snooze

import (
	logx "ghnotifier/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }
