package mlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	maxFileSize   = int64(100 * 1024 * 1024)
	checkInterval = 30 * time.Second
)

type fileLogger struct {
	file   *os.File
	ll     *log.Logger
	buff   chan string
	level  Level
	stdOut bool
}

func newFileLogger(logpath, logName string, level Level, stdOut bool) (*fileLogger, error) {
	// 默认使用当前路径
	if len(logpath) == 0 {
		logpath = "."
	}
	if logName == "" {
		logName = "mlog"
	}
	fullpath := filepath.Join(logpath, logName+".log")
	file, err := openFile(fullpath)
	if err != nil {
		return nil, err
	}
	if stdOut {
		log.SetFlags(log.Ldate | log.Lmicroseconds)
	}
	return &fileLogger{
		file:   file,
		ll:     log.New(file, "", log.Ldate|log.Lmicroseconds),
		buff:   make(chan string, 0x10000),
		level:  level,
		stdOut: stdOut,
	}, nil
}

func (me *fileLogger) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("log recover error %v\n", r)
			}
			me.file.Close()
			wg.Done()
		}()
		timer := time.NewTimer(checkInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				// 退出前写空缓冲
				for {
					select {
					case str := <-me.buff:
						me.write(str)
					default:
						return
					}
				}
			case str := <-me.buff:
				me.write(str)
			case <-timer.C:
				me.rotateIfNeeded()
				timer.Reset(checkInterval)
			}
		}
	}()
}

func (me *fileLogger) write(str string) {
	if me.stdOut {
		log.Println(str)
	}
	me.ll.Println(str)
}

func (me *fileLogger) rotateIfNeeded() {
	info, err := os.Stat(me.file.Name())
	if err != nil {
		log.Println("mlog stat error", err)
		return
	}
	if info.Size() <= maxFileSize {
		return
	}
	name := me.file.Name()
	backup := fmt.Sprintf("%s.%s", name, time.Now().Format("20060102_150405"))
	if err := os.Rename(name, backup); err != nil {
		log.Println("mlog rotate rename error", err)
		return
	}
	file, err := os.Create(name)
	if err != nil {
		log.Println("mlog rotate create error", err)
		return
	}
	me.ll.SetOutput(file)
	me.file.Close()
	me.file = file
}

func (me *fileLogger) IsLevelEnabled(level Level) bool {
	return me.level >= level
}

func (me *fileLogger) push(level Level, args ...any) {
	if me.IsLevelEnabled(level) {
		me.buff <- (getLevelTag(level) + fmt.Sprint(args...))
	}
}

func (me *fileLogger) pushf(level Level, format string, args ...any) {
	if me.IsLevelEnabled(level) {
		me.buff <- (getLevelTag(level) + fmt.Sprintf(format, args...))
	}
}

func (me *fileLogger) Trace(v ...any) { me.push(TraceLevel, v...) }
func (me *fileLogger) Debug(v ...any) { me.push(DebugLevel, v...) }
func (me *fileLogger) Info(v ...any)  { me.push(InfoLevel, v...) }
func (me *fileLogger) Warn(v ...any)  { me.push(WarnLevel, v...) }
func (me *fileLogger) Error(v ...any) { me.push(ErrorLevel, v...) }

func (me *fileLogger) Fatal(v ...any) {
	me.push(FatalLevel, v...)
	time.Sleep(time.Second)
	os.Exit(1)
}

func (me *fileLogger) Tracef(format string, v ...any) { me.pushf(TraceLevel, format, v...) }
func (me *fileLogger) Debugf(format string, v ...any) { me.pushf(DebugLevel, format, v...) }
func (me *fileLogger) Infof(format string, v ...any)  { me.pushf(InfoLevel, format, v...) }
func (me *fileLogger) Warnf(format string, v ...any)  { me.pushf(WarnLevel, format, v...) }
func (me *fileLogger) Errorf(format string, v ...any) { me.pushf(ErrorLevel, format, v...) }

func (me *fileLogger) Fatalf(format string, v ...any) {
	me.pushf(FatalLevel, format, v...)
	time.Sleep(time.Second)
	os.Exit(1)
}

func openFile(fullpath string) (*os.File, error) {
	dir := filepath.Dir(fullpath)
	if _, err := os.Stat(dir); err != nil {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(fullpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
