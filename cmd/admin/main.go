package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"craftcv/internal/auth"
	"craftcv/internal/config"
	"craftcv/internal/database"
	"craftcv/internal/store"
)

const usage = `用法：
  admin create -username alice -email alice@example.com [-org-name Acme]
  admin reset  -login alice

数据库连接读取与 API 相同的配置（craftcv.yaml 或环境变量）。
两个子命令都会打印一次性临时口令，账号登录后必须先改密。
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = create(os.Args[2:])
	case "reset":
		err = reset(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func create(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	username := fs.String("username", "", "用户名")
	email := fs.String("email", "", "登录邮箱")
	orgName := fs.String("org-name", "", "组织名称，默认与用户名相同")
	_ = fs.Parse(args)

	name := strings.TrimSpace(*username)
	mail := strings.ToLower(strings.TrimSpace(*email))
	if name == "" || !strings.Contains(mail, "@") {
		return errors.New("create needs -username and a valid -email")
	}
	org := strings.TrimSpace(*orgName)
	if org == "" {
		org = name
	}

	users, err := openUsers()
	if err != nil {
		return err
	}
	password, hash, err := temporaryPassword()
	if err != nil {
		return err
	}

	user := database.User{Username: name, Email: mail, PasswordHash: hash, MustChangePassword: true}
	created, err := users.Register(context.Background(), &user, org)
	if errors.Is(err, store.ErrAccountExists) {
		return fmt.Errorf("username %q or email %q is already registered", name, mail)
	}
	if err != nil {
		return err
	}

	fmt.Printf("账号 %s <%s> 已创建，组织 %q (id=%d)\n", user.Username, user.Email, created.Name, created.ID)
	fmt.Printf("临时口令: %s\n", password)
	return nil
}

func reset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	login := fs.String("login", "", "用户名或邮箱")
	_ = fs.Parse(args)

	if strings.TrimSpace(*login) == "" {
		return errors.New("reset needs -login")
	}
	users, err := openUsers()
	if err != nil {
		return err
	}
	password, hash, err := temporaryPassword()
	if err != nil {
		return err
	}

	user, err := users.ForcePasswordReset(context.Background(), *login, hash)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no account matches %q", *login)
	}
	if err != nil {
		return err
	}
	fmt.Printf("账号 %s 的口令已重置\n", user.Username)
	fmt.Printf("临时口令: %s\n", password)
	return nil
}

func openUsers() (*store.UserStore, error) {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store.NewUserStore(db), nil
}

// temporaryPassword 返回满足口令策略的随机口令及其哈希。
func temporaryPassword() (string, string, error) {
	buf := make([]byte, 18)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", "", fmt.Errorf("random: %w", err)
		}
		pw := base64.RawURLEncoding.EncodeToString(buf)
		if auth.ValidatePassword(pw) != nil {
			continue
		}
		hash, err := auth.HashPassword(pw)
		return pw, hash, err
	}
}
