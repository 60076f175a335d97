package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/zhouzirui/z-chat/backend/internal/client"
	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

const usage = `用法: chatcli [flags] <command> [args]

命令:
  login                         登录（首次使用自动注册）并打印用户 ID
  list                          列出会话
  open <username>               打开私聊，配合 --group 新建群聊
  show <conversationID>         查看会话消息
  send <conversationID> <text>  发送文本消息
  photo <conversationID> <file> 发送图片消息
  search <query>                按用户名搜索
  watch                         持续打印实时事件
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	server := flag.StringP("server", "s", envOr("CHAT_SERVER", "http://localhost:8080"), "服务端地址")
	user := flag.StringP("user", "u", os.Getenv("CHAT_USER"), "登录用户名")
	group := flag.Bool("group", false, "open 命令新建群聊而非私聊")
	desc := flag.Bool("desc", false, "按时间倒序显示")
	key := flag.String("idempotency-key", "", "send/photo 的幂等键，重试时复用")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "单次请求超时时间")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *user == "" {
		log.Fatal("请通过 --user 或 CHAT_USER 指定用户名")
	}

	ctx := context.Background()
	c := client.New(*server, client.WithTimeout(*timeout))
	sess, created, err := c.Login(ctx, *user)
	if err != nil {
		log.Fatalf("登录失败: %v", err)
	}

	order := chat.SortAsc
	if *desc {
		order = chat.SortDesc
	}
	var sendOpts []client.SendOption
	if *key != "" {
		sendOpts = append(sendOpts, client.WithIdempotencyKey(*key))
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "login":
		log.Printf("用户 %s: id=%s 新注册=%t", *user, sess.UserID(), created)
	case "list":
		var listOrder chat.SortOrder
		if *desc {
			listOrder = chat.SortDesc
		}
		list, err := sess.ListConversations(ctx, listOrder)
		exitOn(err, "获取会话列表失败")
		printJSON(list)
	case "open":
		need(rest, 1)
		kind := chat.ConversationDirect
		if *group {
			kind = chat.ConversationGroup
		}
		conv, created, err := sess.OpenConversation(ctx, rest[0], kind)
		exitOn(err, "打开会话失败")
		log.Printf("会话 %s 新建=%t", conv.ID, created)
	case "show":
		need(rest, 1)
		conv, err := sess.GetConversation(ctx, rest[0], order)
		exitOn(err, "获取会话失败")
		for _, m := range conv.Messages {
			fmt.Printf("%s  %-16s %s [%s]\n", m.Timestamp.Local().Format(time.DateTime), m.Sender.Username, describe(m.Content), m.Status)
		}
	case "send":
		need(rest, 2)
		msg, err := sess.PostMessage(ctx, rest[0], chat.TextContent(strings.Join(rest[1:], " ")), sendOpts...)
		exitOn(err, "发送失败")
		log.Printf("已发送 %s", msg.ID)
	case "photo":
		need(rest, 2)
		data, err := os.ReadFile(rest[1])
		exitOn(err, "读取图片失败")
		msg, err := sess.PostMessage(ctx, rest[0], chat.PhotoContent(data), sendOpts...)
		exitOn(err, "发送失败")
		log.Printf("已发送 %s", msg.ID)
	case "search":
		need(rest, 1)
		users, err := sess.SearchUsers(ctx, rest[0])
		exitOn(err, "搜索失败")
		printJSON(users)
	case "watch":
		watch(sess)
	default:
		flag.Usage()
		log.Fatalf("未知命令 %q", cmd)
	}
}

func watch(sess *client.Session) {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	events, err := sess.Events(ctx)
	exitOn(err, "订阅事件失败")
	log.Printf("已连接，等待事件 (Ctrl+C 退出)")
	for ev := range events {
		fmt.Printf("%s  %-18s %s %s\n", ev.Timestamp.Local().Format(time.DateTime), ev.Type, ev.ConversationID, ev.Data)
	}
	log.Printf("事件流已关闭")
}

func describe(c chat.Content) string {
	if c.Kind == chat.ContentPhoto {
		return fmt.Sprintf("<photo %d bytes>", len(c.Photo))
	}
	return c.Text
}

func need(args []string, n int) {
	if len(args) < n {
		flag.Usage()
		log.Fatalf("缺少参数，需要 %d 个", n)
	}
}

func exitOn(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("输出失败: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
