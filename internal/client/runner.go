package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"elympics/pkg/protocol"
)

const statsEvery = 300

// Run 按帧间隔驱动模拟，直到 ctx 结束、连接出错或对局结束
func Run(ctx context.Context, nc *NetworkClient, sim *Simulation, frame time.Duration) (*protocol.MatchEnd, error) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	var (
		snaps []ReceivedSnapshot
		pongs []PongSample
	)
	for {
		select {
		case <-ctx.Done():
			sim.Disconnect()
			return nil, ctx.Err()
		case now := <-ticker.C:
			if err := nc.Err(); err != nil {
				sim.Disconnect()
				return nil, err
			}

			snaps = nc.DrainSnapshots(snaps[:0])
			pongs = nc.DrainPongs(pongs[:0])
			cond := sim.Frame(now, snaps, pongs)

			if end := nc.ReceiveMatchEnd(); end != nil {
				sim.Disconnect()
				return end, nil
			}

			if st := sim.Stats(); st.Frames%statsEvery == 0 {
				sim.log.WithFields(logrus.Fields{
					"tick":            cond.SelectedTick,
					"server_tick":     cond.LastReceivedTick,
					"rtt":             sim.Rtt(),
					"mispredictions":  st.Mispredictions,
					"reconciliations": st.Reconciliations,
					"forced_jumps":    st.ForcedJumps,
					"dropped":         nc.Dropped(),
				}).Info("模拟状态")
			}
		}
	}
}
