package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションのスイープワーカーで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// MigrateDirection はマイグレーションの方向。
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// MigrateOptions はmigrateサブコマンドの引数。
type MigrateOptions struct {
	Direction MigrateDirection
	Steps     int // downのみ有効
}

// ParseMigrateArgs はmigrateサブコマンド以降の引数を解析する。
//
//	migrate            → up
//	migrate up         → up
//	migrate down       → 1ステップ戻す
//	migrate down N     → Nステップ戻す
func ParseMigrateArgs(args []string) (MigrateOptions, error) {
	if len(args) == 0 || args[0] == string(MigrateUp) {
		return MigrateOptions{Direction: MigrateUp}, nil
	}
	if args[0] != string(MigrateDown) {
		return MigrateOptions{}, fmt.Errorf("unknown migrate direction %q (want up or down)", args[0])
	}

	steps := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return MigrateOptions{}, fmt.Errorf("invalid rollback steps %q: must be a positive integer", args[1])
		}
		steps = n
	}
	return MigrateOptions{Direction: MigrateDown, Steps: steps}, nil
}
