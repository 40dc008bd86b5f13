package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"elympics/internal/archive"
	"elympics/pkg/replay"
)

func main() {
	file := flag.String("file", "", "回放文件路径")
	archivePath := flag.String("archive", "replays/archive.db", "回放归档路径")
	id := flag.String("id", "", "从归档中读取的对局 ID")
	list := flag.Bool("list", false, "列出归档中的全部对局")
	flag.Parse()

	switch {
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			logrus.WithError(err).Fatal("打开回放失败")
		}
		defer f.Close()
		analyze(f)

	case *list || *id != "":
		arch, err := archive.Open(*archivePath)
		if err != nil {
			logrus.WithError(err).Fatal("打开归档失败")
		}
		defer arch.Close()

		if *list {
			matches, err := arch.List()
			if err != nil {
				logrus.WithError(err).Fatal("读取归档失败")
			}
			for _, m := range matches {
				fmt.Printf("%s  %s  玩家 %d  帧 %d  %s  %d 字节\n",
					m.ID, m.StartedAt.Format("2006-01-02 15:04:05"), m.Players, m.LastTick, m.Reason, m.Size)
			}
			return
		}

		_, data, err := arch.Get(*id)
		if err != nil {
			logrus.WithError(err).Fatal("读取对局失败")
		}
		analyze(bytes.NewReader(data))

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func analyze(r io.Reader) {
	rd, err := replay.NewReader(r)
	if err != nil {
		logrus.WithError(err).Fatal("创建读取器失败")
	}
	defer rd.Close()

	sum, err := replay.Analyze(rd)
	if err != nil {
		logrus.WithError(err).Fatal("解析回放失败")
	}

	fmt.Printf("对局:     %s\n", sum.Init.MatchID)
	fmt.Printf("开始时间: %s\n", sum.Init.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("帧率:     %d\n", sum.Init.TicksPerSecond)
	fmt.Printf("快照数:   %d (帧 %d - %d, %s)\n", sum.Snapshots, sum.FirstTick, sum.LastTick, sum.Duration())
	for _, g := range sum.Gaps {
		fmt.Printf("缺帧:     %d - %d\n", g.From, g.To)
	}

	players := make([]int32, 0, len(sum.PlayerInputs))
	for p := range sum.PlayerInputs {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	for _, p := range players {
		fmt.Printf("玩家 %d:   %d 帧输入\n", p, sum.PlayerInputs[p])
	}

	ids := make([]int32, 0, len(sum.ObjectChanges))
	for id := range sum.ObjectChanges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Printf("对象 %d:  %d 次变化\n", id, sum.ObjectChanges[id])
	}
}
