package commands

import "github.com/bwmarrin/discordgo"

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "warikan",
			Description:  "割り勘の記録と精算",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("join", "このチャンネルの割り勘グループに参加します"),
				subcommand("member", "メンバーを追加します",
					userOption("user", "追加するユーザー", true),
				),
				subcommand("leave", "グループから抜けます"),
				subcommand("split", "支出を記録して割り勘します",
					stringOption("amount", "合計金額 (例: 3000, 1250.50)", true),
					stringOption("users", "割り勘する人のメンション (省略時は全員、自分を含める場合は自分もメンション)", false),
					stringOption("memo", "メモ", false),
					stringOption("paid", "複数人で払った場合の内訳 (例: @a=2000 @b=1000)", false),
				),
				subcommand("undo", "自分が最後に記録した支出を取り消します"),
				subcommand("balance", "各メンバーの残高を表示します"),
				subcommand("settle", "精算方法を計算して支払タスクを作成します"),
				subcommand("paid", "支払ったことを記録します",
					userOption("user", "支払った相手", true),
					stringOption("amount", "金額", true),
					stringOption("memo", "メモ", false),
				),
				subcommand("status", "支出のまとめと未完了の支払タスクを表示します"),
				subcommand("history", "最近の記録を10件表示します",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "mine",
						Description: "自分が関わる記録だけを表示し、支払額と負担額を出します",
					},
				),
				subcommand("members", "参加者一覧を表示します"),
				subcommand("reminder", "未精算リマインダーを設定します",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "enabled",
						Description: "有効にするか (既定: 有効)",
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "interval",
						Description: "送信間隔 (分, 既定: 1440)",
						MinValue:    floatPtr(1),
					},
				),
			},
		},
	}
}

func subcommand(name, description string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     opts,
	}
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}
